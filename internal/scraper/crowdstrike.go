package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"quill/internal/document"
)

const (
	KindCrowdstrike    = "crowdstrike"
	crowdstrikeBaseURL = "https://www.crowdstrike.com"
	crowdstrikeDate    = "January 2, 2006"
)

// Crowdstrike reads the category listings and posts of the CrowdStrike blog.
type Crowdstrike struct {
	cfg     SourceConfig
	fetcher PageFetcher
}

func NewCrowdstrike(cfg SourceConfig, f PageFetcher) *Crowdstrike {
	if cfg.BaseURL == "" {
		cfg.BaseURL = crowdstrikeBaseURL
	}
	return &Crowdstrike{cfg: cfg, fetcher: f}
}

func (c *Crowdstrike) load(ctx context.Context, u string) (*html.Node, error) {
	page, err := c.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", u, err)
	}
	return doc, nil
}

func (c *Crowdstrike) LatestPost(ctx context.Context) (PostMeta, error) {
	doc, err := c.load(ctx, c.cfg.BlogURL)
	if err != nil {
		return PostMeta{}, err
	}

	article := findFirst(doc, "div", "row category_article flex-lg-row")
	if article == nil {
		return PostMeta{}, fmt.Errorf("%s: %w", c.cfg.Name, ErrNoPosts)
	}

	h3 := findFirst(article, "h3", "")
	if h3 == nil {
		return PostMeta{}, fmt.Errorf("%s: listing entry has no heading: %w", c.cfg.Name, ErrPostLayout)
	}
	link := findFirst(h3, "a", "")
	if link == nil {
		return PostMeta{}, fmt.Errorf("%s: listing heading has no link: %w", c.cfg.Name, ErrPostLayout)
	}

	postURL, err := c.resolve(getAttr(link, "href"))
	if err != nil {
		return PostMeta{}, err
	}

	date, author, err := publishInfo(article)
	if err != nil {
		return PostMeta{}, fmt.Errorf("%s: %w", c.cfg.Name, err)
	}

	return PostMeta{
		URL:    postURL,
		Title:  strings.TrimSpace(textOf(h3)),
		Author: author,
		Date:   date,
	}, nil
}

func (c *Crowdstrike) ScrapePost(ctx context.Context, postURL string) (document.Post, error) {
	doc, err := c.load(ctx, postURL)
	if err != nil {
		return document.Post{}, err
	}

	body := findFirst(doc, "div", "blog_content")
	if body == nil {
		return document.Post{}, fmt.Errorf("%s: no blog_content: %w", postURL, ErrPostLayout)
	}

	post := document.Post{
		URL:     postURL,
		Content: textOf(body),
		Source:  c.cfg.Name,
	}

	if article := findFirst(doc, "article", ""); article != nil {
		if h1 := findFirst(article, "h1", ""); h1 != nil {
			post.Title = strings.TrimSpace(textOf(h1))
		}
	}

	if date, author, err := publishInfo(doc); err == nil {
		post.Date = date
		post.Author = author
	}

	return post, nil
}

// publishInfo reads the date paragraph and author link of the first
// publish_info block under n.
func publishInfo(n *html.Node) (time.Time, string, error) {
	info := findFirst(n, "div", "publish_info")
	if info == nil {
		return time.Time{}, "", fmt.Errorf("no publish_info: %w", ErrPostLayout)
	}

	p := findFirst(info, "p", "")
	if p == nil {
		return time.Time{}, "", fmt.Errorf("no publish date: %w", ErrPostLayout)
	}
	date, err := time.ParseInLocation(crowdstrikeDate, strings.TrimSpace(textOf(p)), time.Local)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse publish date: %w", err)
	}

	var author string
	if a := findFirst(info, "a", ""); a != nil {
		author = strings.TrimSpace(textOf(a))
	}
	return date, author, nil
}

func (c *Crowdstrike) resolve(href string) (string, error) {
	if href == "" {
		return "", fmt.Errorf("%s: empty post link: %w", c.cfg.Name, ErrPostLayout)
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse post link: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
