package domain

import "time"

// Item is a minted collectible split into PartCount parts.
type Item struct {
	ID        string
	Creator   string
	Name      string
	PartCount int
	CreatedAt time.Time
}
