package mcomment

// Comment is a single comment on a recipe post. UserID is the author.
type Comment struct {
	ID       string
	UserID   string
	DateTime string
	Content  string
}
