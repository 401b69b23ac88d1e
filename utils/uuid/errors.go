package uuid

import "errors"

var errNilUUID = errors.New("the nil UUID is not a valid identifier")
