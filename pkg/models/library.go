package models

// ApprovedLink is an admin-curated URL agents may send.
type ApprovedLink struct {
	ID       string `json:"id" validate:"required"`
	Title    string `json:"title" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	Category string `json:"category"`
}

func (l ApprovedLink) GetID() string { return l.ID }

type MediaType string

const MediaImage MediaType = "image"

// ApprovedMedia is an admin-curated image. URL holds a data URL.
type ApprovedMedia struct {
	ID       string    `json:"id" validate:"required"`
	Title    string    `json:"title" validate:"required"`
	URL      string    `json:"url" validate:"required,datauri"`
	Type     MediaType `json:"type" validate:"required,oneof=image"`
	Category string    `json:"category"`
	IsLocal  bool      `json:"isLocal"`
}

func (m ApprovedMedia) GetID() string { return m.ID }
