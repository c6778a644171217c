package redditapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

type listingEnvelope struct {
	Kind string `json:"kind"`
	Data struct {
		After    *string `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type linkData struct {
	ID            string  `json:"id"`
	Subreddit     string  `json:"subreddit"`
	Author        string  `json:"author"`
	Title         string  `json:"title"`
	Score         int64   `json:"score"`
	URL           string  `json:"url"`
	CreatedUTC    float64 `json:"created_utc"`
	Over18        bool    `json:"over_18"`
	NumComments   int64   `json:"num_comments"`
	Distinguished *string `json:"distinguished"`
}

// commentData covers both "t1" comments and "more" placeholders.
type commentData struct {
	ID          string          `json:"id"`
	LinkID      string          `json:"link_id"`
	ParentID    string          `json:"parent_id"`
	Author      string          `json:"author"`
	Body        string          `json:"body"`
	Score       int64           `json:"score"`
	IsSubmitter bool            `json:"is_submitter"`
	Edited      json.RawMessage `json:"edited"`
	CreatedUTC  float64         `json:"created_utc"`
	Replies     json.RawMessage `json:"replies"`
	Children    []string        `json:"children"`
}

type userData struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	CreatedUTC       float64 `json:"created_utc"`
	LinkKarma        int64   `json:"link_karma"`
	CommentKarma     int64   `json:"comment_karma"`
	TotalKarma       int64   `json:"total_karma"`
	IsEmployee       bool    `json:"is_employee"`
	IsMod            bool    `json:"is_mod"`
	IsGold           bool    `json:"is_gold"`
	HasVerifiedEmail bool    `json:"has_verified_email"`
	AcceptFollowers  bool    `json:"accept_followers"`
	IsSuspended      bool    `json:"is_suspended"`
	Subreddit        *struct {
		UserIsSubscriber bool `json:"user_is_subscriber"`
	} `json:"subreddit"`
}

type moreChildrenEnvelope struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func unixUTC(secs float64) time.Time {
	return time.Unix(int64(secs), 0).UTC()
}

func decodeListing(body []byte) ([]reddit.Submission, string, error) {
	var env listingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("unmarshal listing: %w", err)
	}
	subs := make([]reddit.Submission, 0, len(env.Data.Children))
	for _, child := range env.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var d linkData
		if err := json.Unmarshal(child.Data, &d); err != nil {
			return nil, "", fmt.Errorf("unmarshal submission: %w", err)
		}
		subs = append(subs, toSubmission(d))
	}
	after := ""
	if env.Data.After != nil {
		after = *env.Data.After
	}
	return subs, after, nil
}

func toSubmission(d linkData) reddit.Submission {
	s := reddit.Submission{
		ID:          d.ID,
		Subreddit:   d.Subreddit,
		Author:      reddit.AuthorRef(d.Author),
		Title:       d.Title,
		Score:       d.Score,
		URL:         d.URL,
		CreatedUTC:  unixUTC(d.CreatedUTC),
		Over18:      d.Over18,
		NumComments: d.NumComments,
	}
	if d.Distinguished != nil {
		s.Distinguished = *d.Distinguished
	}
	return s
}

// decodeCommentTree reads the [submission, comments] listing pair.
func decodeCommentTree(body []byte, submissionID string) (reddit.CommentPage, error) {
	var listings []listingEnvelope
	if err := json.Unmarshal(body, &listings); err != nil {
		return reddit.CommentPage{}, fmt.Errorf("unmarshal comment tree: %w", err)
	}
	if len(listings) < 2 {
		return reddit.CommentPage{}, fmt.Errorf("comment tree: expected 2 listings, got %d", len(listings))
	}
	var page reddit.CommentPage
	if err := flatten(listings[1].Data.Children, submissionID, &page); err != nil {
		return reddit.CommentPage{}, err
	}
	return page, nil
}

func decodeMoreChildren(body []byte, submissionID string) (reddit.CommentPage, error) {
	var env moreChildrenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return reddit.CommentPage{}, fmt.Errorf("unmarshal morechildren: %w", err)
	}
	if len(env.JSON.Errors) > 0 {
		return reddit.CommentPage{}, fmt.Errorf("morechildren errors: %v", env.JSON.Errors)
	}
	var page reddit.CommentPage
	if err := flatten(env.JSON.Data.Things, submissionID, &page); err != nil {
		return reddit.CommentPage{}, err
	}
	return page, nil
}

// flatten walks a comment forest depth-first, appending comments and
// placeholders to page.
func flatten(things []thing, submissionID string, page *reddit.CommentPage) error {
	for _, t := range things {
		var d commentData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return fmt.Errorf("unmarshal %s: %w", t.Kind, err)
		}
		switch t.Kind {
		case "t1":
			page.Comments = append(page.Comments, toComment(d, submissionID))
			replies := bytes.TrimSpace(d.Replies)
			if len(replies) > 0 && replies[0] == '{' {
				var nested listingEnvelope
				if err := json.Unmarshal(replies, &nested); err != nil {
					return fmt.Errorf("unmarshal replies of %s: %w", d.ID, err)
				}
				if err := flatten(nested.Data.Children, submissionID, page); err != nil {
					return err
				}
			}
		case "more":
			page.More = append(page.More, reddit.MoreStub{
				ID:       d.ID,
				ParentID: reddit.StripTypePrefix(d.ParentID),
				Children: d.Children,
			})
		}
	}
	return nil
}

func toComment(d commentData, submissionID string) reddit.Comment {
	linkID := reddit.StripTypePrefix(d.LinkID)
	if linkID == "" {
		linkID = submissionID
	}
	c := reddit.Comment{
		ID:           d.ID,
		SubmissionID: linkID,
		ParentID:     d.ParentID,
		Author:       reddit.AuthorRef(d.Author),
		Body:         d.Body,
		Score:        d.Score,
		IsSubmitter:  d.IsSubmitter,
		CreatedUTC:   unixUTC(d.CreatedUTC),
	}
	c.Edited, c.EditedUTC = decodeEdited(d.Edited)
	return c
}

// decodeEdited handles the field being either false or an edit timestamp.
func decodeEdited(raw json.RawMessage) (bool, *time.Time) {
	v := strings.TrimSpace(string(raw))
	switch v {
	case "", "null", "false":
		return false, nil
	case "true":
		return true, nil
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return true, nil
	}
	at := unixUTC(secs)
	return true, &at
}

func decodeUser(body []byte) (reddit.Author, error) {
	var env thing
	if err := json.Unmarshal(body, &env); err != nil {
		return reddit.Author{}, fmt.Errorf("unmarshal user: %w", err)
	}
	var d userData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return reddit.Author{}, fmt.Errorf("unmarshal user data: %w", err)
	}
	if d.IsSuspended || d.ID == "" {
		return reddit.Author{}, reddit.ErrAbsent
	}
	a := reddit.Author{
		ID:               d.ID,
		Name:             d.Name,
		CreatedUTC:       unixUTC(d.CreatedUTC),
		LinkKarma:        d.LinkKarma,
		CommentKarma:     d.CommentKarma,
		TotalKarma:       d.TotalKarma,
		IsEmployee:       d.IsEmployee,
		IsMod:            d.IsMod,
		IsGold:           d.IsGold,
		HasVerifiedEmail: d.HasVerifiedEmail,
		AcceptsFollowers: d.AcceptFollowers,
	}
	if a.TotalKarma == 0 {
		a.TotalKarma = a.LinkKarma + a.CommentKarma
	}
	if d.Subreddit != nil {
		a.IsSubscriber = d.Subreddit.UserIsSubscriber
	}
	return a, nil
}

func decodeActivity(body []byte) ([]time.Time, error) {
	var env listingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unmarshal activity: %w", err)
	}
	times := make([]time.Time, 0, len(env.Data.Children))
	for _, child := range env.Data.Children {
		var d struct {
			CreatedUTC float64 `json:"created_utc"`
		}
		if err := json.Unmarshal(child.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal activity item: %w", err)
		}
		times = append(times, unixUTC(d.CreatedUTC))
	}
	return times, nil
}
