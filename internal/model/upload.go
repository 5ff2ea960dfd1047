package model

// Upload is an image received from a caller, held in memory.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (u *Upload) Empty() bool { return u == nil || len(u.Data) == 0 }
