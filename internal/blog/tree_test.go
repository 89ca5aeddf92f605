package blog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/api/internal/store"
)

func id(v int64) *int64 { return &v }

func comment(commentID int64, parent *int64) store.Comment {
	return store.Comment{
		ID:         commentID,
		PostID:     1,
		ParentID:   parent,
		AuthorName: "author",
		Content:    "content",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, int(commentID), 0, time.UTC),
	}
}

func TestBuildCommentTreeEmpty(t *testing.T) {
	roots := BuildCommentTree(nil)
	require.NotNil(t, roots)
	assert.Empty(t, roots)

	raw, err := json.Marshal(roots)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestBuildCommentTreeNested(t *testing.T) {
	// 1
	// ├── 2
	// │   └── 4
	// └── 5
	// 3
	rows := []store.Comment{
		comment(1, nil),
		comment(2, id(1)),
		comment(3, nil),
		comment(4, id(2)),
		comment(5, id(1)),
	}

	roots := BuildCommentTree(rows)
	require.Len(t, roots, 2)
	assert.Equal(t, int64(1), roots[0].ID)
	assert.Equal(t, int64(3), roots[1].ID)

	require.Len(t, roots[0].Replies, 2)
	assert.Equal(t, int64(2), roots[0].Replies[0].ID)
	assert.Equal(t, int64(5), roots[0].Replies[1].ID)

	require.Len(t, roots[0].Replies[0].Replies, 1)
	assert.Equal(t, int64(4), roots[0].Replies[0].Replies[0].ID)

	assert.NotNil(t, roots[1].Replies)
	assert.Empty(t, roots[1].Replies)
	assert.Equal(t, len(rows), CountNodes(roots))
}

func TestBuildCommentTreeDropsOrphans(t *testing.T) {
	rows := []store.Comment{
		comment(1, nil),
		comment(2, id(42)),
		comment(3, id(2)),
		comment(4, id(1)),
	}

	roots := BuildCommentTree(rows)
	require.Len(t, roots, 1)
	assert.Equal(t, int64(1), roots[0].ID)
	require.Len(t, roots[0].Replies, 1)
	assert.Equal(t, int64(4), roots[0].Replies[0].ID)
	assert.Equal(t, 2, CountNodes(roots))
}

func TestBuildCommentTreeEveryNodeAppearsOnce(t *testing.T) {
	rows := make([]store.Comment, 0, 50)
	rows = append(rows, comment(1, nil))
	for i := int64(2); i <= 50; i++ {
		parent := (i / 2)
		rows = append(rows, comment(i, id(parent)))
	}

	roots := BuildCommentTree(rows)
	seen := map[int64]int{}
	var walk func(nodes []*CommentNode, parent *int64)
	walk = func(nodes []*CommentNode, parent *int64) {
		for _, node := range nodes {
			seen[node.ID]++
			if parent == nil {
				assert.Nil(t, node.ParentID)
			} else {
				require.NotNil(t, node.ParentID)
				assert.Equal(t, *parent, *node.ParentID)
			}
			walk(node.Replies, &node.ID)
		}
	}
	walk(roots, nil)

	assert.Len(t, seen, 50)
	for commentID, count := range seen {
		assert.Equal(t, 1, count, "comment %d", commentID)
	}
}

func TestCommentNodeJSONShape(t *testing.T) {
	node := NewCommentNode(comment(7, id(3)))
	raw, err := json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 7,
		"postId": 1,
		"parentId": 3,
		"authorName": "author",
		"content": "content",
		"createdAt": "2024-01-01T00:00:07Z",
		"replies": []
	}`, string(raw))
}
