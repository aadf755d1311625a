// Package github ingests issues from a GitHub repository.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// Plugin returns the github plugin registration.
func Plugin() driven.Plugin {
	return driven.Plugin{
		Metadata: domain.PluginMetadata{
			Type:        "github",
			Name:        "GitHub Issues",
			Description: "Ingests new and updated issues from a GitHub repository",
			Version:     "1.3.1",
			ConfigFields: []domain.ConfigField{
				{Key: "owner", Label: "Owner", Type: domain.ConfigString, Required: true},
				{Key: "repo", Label: "Repository", Type: domain.ConfigString, Required: true},
				{Key: "tokenSecret", Label: "Token Secret Name", Type: domain.ConfigSecret},
				{Key: "baseUrl", Label: "Base URL (GitHub Enterprise)", Type: domain.ConfigString},
			},
			ItemFields: []domain.ItemField{
				{Key: "title", Label: "Title", Type: domain.FieldString},
				{Key: "author", Label: "Author", Type: domain.FieldString},
				{Key: "state", Label: "State", Type: domain.FieldEnum, Values: []string{"open", "closed"}},
				{Key: "labels", Label: "Labels", Type: domain.FieldString},
				{Key: "comments", Label: "Comments", Type: domain.FieldNumber},
			},
		},
		New: func() driven.Adapter { return &adapter{} },
	}
}

var _ driven.AuthHeaderProvider = (*adapter)(nil)

type adapter struct{}

type cursor struct {
	Since time.Time `json:"since"`
}

func (a *adapter) Poll(ctx context.Context, source domain.Source, state json.RawMessage, secrets driven.SecretResolver) (*driven.PollResult, error) {
	var cur cursor
	if len(state) > 0 {
		_ = json.Unmarshal(state, &cur)
	}

	client, err := a.client(ctx, source, secrets)
	if err != nil {
		return nil, err
	}

	owner, repo := source.Config["owner"], source.Config["repo"]
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "asc",
		Since:       cur.Since,
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	newest := cur.Since
	var items []domain.IngestItem
	for {
		issues, resp, err := client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues %s/%s: %w", owner, repo, err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			items = append(items, toItem(issue))
			if u := issue.GetUpdatedAt().Time; u.After(newest) {
				newest = u
			}
		}
		if resp.NextPage == 0 {
			break
		}
		// IssueListByRepoOptions embeds two Page-bearing option structs;
		// issue listing paginates by page number.
		opts.ListOptions.Page = resp.NextPage
	}

	next, err := json.Marshal(cursor{Since: newest})
	if err != nil {
		return nil, fmt.Errorf("encode cursor: %w", err)
	}
	return &driven.PollResult{Items: items, State: next}, nil
}

func (a *adapter) Test(ctx context.Context, source domain.Source, secrets driven.SecretResolver) (*driven.TestResult, error) {
	client, err := a.client(ctx, source, secrets)
	if err != nil {
		return &driven.TestResult{OK: false, Message: err.Error()}, nil
	}
	owner, repo := source.Config["owner"], source.Config["repo"]
	r, _, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return &driven.TestResult{OK: false, Message: fmt.Sprintf("cannot reach %s/%s: %v", owner, repo, err)}, nil
	}
	return &driven.TestResult{
		OK:      true,
		Message: fmt.Sprintf("repository %s reachable, %d open issues", r.GetFullName(), r.GetOpenIssuesCount()),
	}, nil
}

// DownloadAuth lets the attachment downloader fetch private release and
// issue assets with the same token the poller uses.
func (a *adapter) DownloadAuth(source domain.Source, secrets driven.SecretResolver) (map[string]string, error) {
	name := source.Config["tokenSecret"]
	if name == "" {
		return nil, nil
	}
	token, err := secrets(name)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

func (a *adapter) client(ctx context.Context, source domain.Source, secrets driven.SecretResolver) (*gh.Client, error) {
	var httpClient *http.Client
	if name := source.Config["tokenSecret"]; name != "" {
		token, err := secrets(name)
		if err != nil {
			return nil, err
		}
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, src)
	}

	client := gh.NewClient(httpClient)
	if base := source.Config["baseUrl"]; base != "" {
		enterprise, err := client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("base url %q: %w", base, err)
		}
		client = enterprise
	}
	return client, nil
}

func toItem(issue *gh.Issue) domain.IngestItem {
	labels := ""
	for i, l := range issue.Labels {
		if i > 0 {
			labels += ","
		}
		labels += l.GetName()
	}
	num := strconv.Itoa(issue.GetNumber())
	return domain.IngestItem{
		ID:          num,
		Hash:        domain.ContentHash(num, issue.GetUpdatedAt().Format(time.RFC3339)),
		Title:       fmt.Sprintf("#%d %s", issue.GetNumber(), issue.GetTitle()),
		Description: issue.GetBody() + "\n\n" + issue.GetHTMLURL(),
		Fields: map[string]any{
			"title":    issue.GetTitle(),
			"author":   issue.GetUser().GetLogin(),
			"state":    issue.GetState(),
			"labels":   labels,
			"comments": float64(issue.GetComments()),
		},
		Origin: domain.Origin{
			AdapterType: "github",
			Channel:     issue.GetRepositoryURL(),
			Sender:      issue.GetUser().GetLogin(),
		},
	}
}
