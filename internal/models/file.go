package models

// LocalFile is a file a user dropped or picked, held in memory until it is
// parsed.
type LocalFile struct {
	Name string
	Data []byte
}
