package reddit

// CollectStats summarises a collection run.
type CollectStats struct {
	SourcesFetched       int `json:"sources_fetched"`
	SourcesSkipped       int `json:"sources_skipped"`
	SubmissionsListed    int `json:"submissions_listed"`
	SubmissionsCollected int `json:"submissions_collected"`
	SubmissionsFailed    int `json:"submissions_failed"`
	CommentTreesFailed   int `json:"comment_trees_failed"`
	CommentsCollected    int `json:"comments_collected"`
	AuthorsFetched       int `json:"authors_fetched"`
	AuthorsAbsent        int `json:"authors_absent"`
	AuthorsFailed        int `json:"authors_failed"`
	ThrottleEvents       int `json:"throttle_events"`
}

// IngestStats summarises an ingestion pass.
type IngestStats struct {
	AuthorsUpserted     int `json:"authors_upserted"`
	AuthorsFailed       int `json:"authors_failed"`
	SubmissionsUpserted int `json:"submissions_upserted"`
	SubmissionsSkipped  int `json:"submissions_skipped"`
	SubmissionsFailed   int `json:"submissions_failed"`
	CommentsInserted    int `json:"comments_inserted"`
	CommentsDuplicate   int `json:"comments_duplicate"`
	CommentsSkipped     int `json:"comments_skipped"`
	CommentsFailed      int `json:"comments_failed"`
}

// Failed returns the number of records that hit a storage error.
func (s IngestStats) Failed() int {
	return s.AuthorsFailed + s.SubmissionsFailed + s.CommentsFailed
}
