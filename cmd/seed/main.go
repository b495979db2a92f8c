package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/alphabot-ai/blogapi/internal/client"
	"github.com/alphabot-ai/blogapi/internal/logging"
)

var authors = []string{"ada", "brian", "grace", "ken", "rob"}

var posts = []struct {
	title   string
	content string
	status  string
}{
	{"Getting started with Go modules", "Modules replaced GOPATH and made builds reproducible.", "published"},
	{"Why we moved to PostgreSQL", "A short story about outgrowing a single file database.", "published"},
	{"Notes on JWT expiry", "Short-lived tokens keep revocation simple.", "published"},
	{"Draft: structured logging", "zerolog, request ids and access logs.", "draft"},
	{"Writing table driven tests", "One slice of cases, one loop, clear failures.", "published"},
	{"Draft: CORS explained", "Preflights, allowed headers and credentials.", "draft"},
	{"Designing small interfaces", "Accept interfaces, return structs.", "published"},
	{"Graceful shutdown in five lines", "Signal, context with timeout, Shutdown.", "published"},
}

var comments = []string{
	"Great write-up, thanks!",
	"I disagree with the second point.",
	"Could you share the benchmark numbers?",
	"This saved me an afternoon.",
	"Looking forward to the follow-up.",
	"Typo in the third paragraph.",
}

func main() {
	baseURL := pflag.String("url", "http://localhost:5000", "blog API base URL")
	password := pflag.String("password", "password123", "password for every seeded author")
	adminUser := pflag.String("admin-user", "", "existing admin used to approve comments (optional)")
	adminPassword := pflag.String("admin-password", "", "password of --admin-user")
	pflag.Parse()

	log := logging.Stderr("info", "console")
	ctx := context.Background()
	log.Info().Str("url", *baseURL).Msg("seeding")

	var clients []*client.Client
	for _, name := range authors {
		c := client.New(*baseURL)
		err := c.Register(ctx, name, name+"@example.com", *password)
		var apiErr *client.APIError
		if err != nil && !errors.As(err, &apiErr) {
			log.Fatal().Err(err).Str("user", name).Msg("register")
		}
		if err != nil {
			log.Warn().Str("user", name).Msg("already registered, logging in")
		}
		if _, err := c.Login(ctx, name, *password); err != nil {
			log.Fatal().Err(err).Str("user", name).Msg("login")
		}
		clients = append(clients, c)
		log.Info().Str("user", name).Msg("author ready")
	}

	var postIDs []string
	for _, p := range posts {
		idx := rand.Intn(len(clients))
		post, err := clients[idx].CreatePost(ctx, client.PostInput{Title: p.title, Content: p.content, Status: p.status})
		if err != nil {
			log.Error().Err(err).Str("title", p.title).Msg("create post")
			continue
		}
		postIDs = append(postIDs, post.ID)
		log.Info().Str("id", post.ID).Str("author", authors[idx]).Msg("post created")
		// Spread out created_at so ordering is visible.
		time.Sleep(50 * time.Millisecond)
	}

	var commentIDs []string
	for _, postID := range postIDs {
		for i := rand.Intn(4); i >= 0; i-- {
			c := clients[rand.Intn(len(clients))]
			comment, err := c.CreateComment(ctx, postID, comments[rand.Intn(len(comments))])
			if err != nil {
				log.Error().Err(err).Str("post", postID).Msg("create comment")
				continue
			}
			commentIDs = append(commentIDs, comment.ID)
		}
	}
	log.Info().Int("count", len(commentIDs)).Msg("comments created")

	approved := 0
	if *adminUser != "" {
		admin := client.New(*baseURL)
		if _, err := admin.Login(ctx, *adminUser, *adminPassword); err != nil {
			log.Fatal().Err(err).Msg("admin login")
		}
		for i, id := range commentIDs {
			if i%3 == 2 {
				continue
			}
			if _, err := admin.ApproveComment(ctx, id); err != nil {
				log.Error().Err(err).Str("comment", id).Msg("approve")
				continue
			}
			approved++
		}
	}

	fmt.Fprintln(os.Stdout, "\n=== Seed Complete ===")
	fmt.Fprintf(os.Stdout, "Authors:   %d\n", len(clients))
	fmt.Fprintf(os.Stdout, "Posts:     %d\n", len(postIDs))
	fmt.Fprintf(os.Stdout, "Comments:  %d (%d approved)\n", len(commentIDs), approved)
}
