// Package blog holds the comment threading and tag reconciliation rules
// shared by every store implementation.
package blog

import (
	"time"

	"quill/api/internal/store"
)

// CommentNode is a comment together with its direct replies.
type CommentNode struct {
	ID         int64          `json:"id"`
	PostID     int64          `json:"postId"`
	ParentID   *int64         `json:"parentId"`
	AuthorName string         `json:"authorName"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"createdAt"`
	Replies    []*CommentNode `json:"replies"`
}

func NewCommentNode(c store.Comment) *CommentNode {
	return &CommentNode{
		ID:         c.ID,
		PostID:     c.PostID,
		ParentID:   c.ParentID,
		AuthorName: c.AuthorName,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
		Replies:    make([]*CommentNode, 0),
	}
}

// BuildCommentTree arranges a post's comments into a forest. Rows must be
// ordered by creation time; that order is kept for roots and for every
// replies slice. A comment whose parent is not among rows is dropped along
// with its subtree. The result is never nil.
func BuildCommentTree(rows []store.Comment) []*CommentNode {
	nodes := make(map[int64]*CommentNode, len(rows))
	for _, row := range rows {
		nodes[row.ID] = NewCommentNode(row)
	}

	roots := make([]*CommentNode, 0)
	for _, row := range rows {
		node := nodes[row.ID]
		if row.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*row.ParentID]
		if !ok {
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}
	return roots
}

// CountNodes returns the number of comments reachable from roots.
func CountNodes(roots []*CommentNode) int {
	count := 0
	for _, node := range roots {
		count += 1 + CountNodes(node.Replies)
	}
	return count
}
