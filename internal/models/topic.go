package models

type Topic struct {
	ID       string  `json:"-"`
	Title    string  `json:"title"`
	Posts    int     `json:"posts"`
	Users    int     `json:"users"`
	Readings int     `json:"readings"`
	Score    float64 `json:"score"`
}
