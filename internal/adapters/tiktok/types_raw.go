package tiktok

// Raw API shapes, matching the platform JSON.

type itemDetailResponse struct {
	StatusCode int         `json:"statusCode"`
	StatusMsg  string      `json:"statusMsg"`
	ItemInfo   rawItemInfo `json:"itemInfo"`
}

type rawItemInfo struct {
	ItemStruct rawItem `json:"itemStruct"`
}

type rawItem struct {
	ID     string    `json:"id"`
	Author rawAuthor `json:"author"`
	Stats  rawStats  `json:"stats"`
}

type rawAuthor struct {
	ID       string `json:"id"`
	UniqueID string `json:"uniqueId"`
	Nickname string `json:"nickname"`
}

type rawStats struct {
	CommentCount int `json:"commentCount"`
}

type commentListResponse struct {
	StatusCode int          `json:"status_code"`
	StatusMsg  string       `json:"status_msg"`
	Comments   []rawComment `json:"comments"`
	Cursor     int          `json:"cursor"`
	HasMore    int          `json:"has_more"`
	Total      int          `json:"total"`
}

type rawComment struct {
	CID       string         `json:"cid"`
	Text      string         `json:"text"`
	DiggCount int64          `json:"digg_count"`
	User      rawCommentUser `json:"user"`
}

type rawCommentUser struct {
	UID      string `json:"uid"`
	UniqueID string `json:"unique_id"`
	Nickname string `json:"nickname"`
}

// Status codes the item API uses for missing and private videos.
const (
	statusOK       = 0
	statusNotFound = 10204
	statusPrivate  = 10216
	statusRemoved  = 10217
)
