package remote

import (
	"strconv"
	"time"

	"heartline/internal/likes"
)

type wireAuthor struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Image    string `json:"image"`
}

// wirePost mirrors the post JSON served by the API.
type wirePost struct {
	ID            uint       `json:"id"`
	Content       string     `json:"content"`
	ImageURL      string     `json:"image_url"`
	Author        wireAuthor `json:"author"`
	LikesCount    int        `json:"likes_count"`
	CommentsCount int        `json:"comments_count"`
	LikerIDs      []uint     `json:"liker_ids"`
	CreatedAt     time.Time  `json:"created_at"`
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (w wirePost) toPost() likes.Post {
	ids := make([]string, len(w.LikerIDs))
	for i, id := range w.LikerIDs {
		ids[i] = formatID(id)
	}
	return likes.Post{
		ID: formatID(w.ID),
		Author: likes.Author{
			ID:          formatID(w.Author.ID),
			DisplayName: w.Author.Name,
			Handle:      w.Author.Username,
			ImageURL:    w.Author.Image,
		},
		Content:      w.Content,
		ImageURL:     w.ImageURL,
		CreatedAt:    w.CreatedAt,
		Likers:       likes.NewLikerSet(ids...),
		LikeCount:    w.LikesCount,
		CommentCount: w.CommentsCount,
	}
}
