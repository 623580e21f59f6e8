package membership

import "errors"

// ErrNameTaken is returned when a display name is already used in a room
var ErrNameTaken = errors.New("display name already taken in room")
