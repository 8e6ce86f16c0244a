package config

// Backend abstracts config storage so the loader can be tested without
// touching the filesystem. The shipped implementation is a flat JSON file
// in an XDG-compatible location.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
