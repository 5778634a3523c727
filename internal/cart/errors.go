package cart

import "errors"

// Sentinel errors returned while loading a cartridge image or a save file.
var (
	ErrBadHeader         = errors.New("cart: ROM too small to contain header")
	ErrUnsupportedMapper = errors.New("cart: unsupported or unrecognized mapper type")
	ErrRomTruncated      = errors.New("cart: ROM image shorter than its header claims")
	ErrSaveCorrupt       = errors.New("cart: battery RAM file size does not match cartridge RAM")
)
