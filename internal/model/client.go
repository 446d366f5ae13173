package model

import "time"

type Client struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Opportunity struct {
	ID        int       `json:"id"`
	Client    string    `json:"client"`
	Title     string    `json:"title"`
	Value     float64   `json:"value"`
	Status    string    `json:"status"` // open / won / lost
	CreatedAt time.Time `json:"created_at"`
}
