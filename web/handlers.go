package web

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/robertmeta/blog-cli/content"
	"github.com/robertmeta/blog-cli/model"
	"github.com/robertmeta/blog-cli/sitemap"
)

const maxWebhookBody = 1 << 20

type postList struct {
	Count int           `json:"count"`
	Posts []*model.Post `json:"posts"`
}

type postPage struct {
	Post     *model.Post     `json:"post"`
	HTML     string          `json:"html"`
	Sections []model.Section `json:"sections"`
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.content.ListByTag(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		s.logger.Printf("error listing posts: %v", err)
		writeJSON(w, http.StatusInternalServerError, message{"Error fetching posts"})
		return
	}
	writeJSON(w, http.StatusOK, postList{Count: len(posts), Posts: posts})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, found, err := s.content.GetPostBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.logger.Printf("error fetching post: %v", err)
		writeJSON(w, http.StatusInternalServerError, message{"Error fetching post"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, message{"Post not found"})
		return
	}

	res, err := s.renderer.Render(post.Content)
	if err != nil {
		s.logger.Printf("error rendering post %s: %v", post.Slug, err)
		writeJSON(w, http.StatusInternalServerError, message{"Error rendering post"})
		return
	}
	writeJSON(w, http.StatusOK, postPage{Post: post.Summary(), HTML: res.HTML, Sections: res.Sections})
}

func (s *Server) handleAdjacent(w http.ResponseWriter, r *http.Request) {
	adj, err := s.content.GetAdjacentPosts(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.logger.Printf("error fetching adjacent posts: %v", err)
		writeJSON(w, http.StatusInternalServerError, model.Adjacent{})
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	counts, err := s.content.TagCounts(r.Context())
	if err != nil {
		s.logger.Printf("error counting tags: %v", err)
		writeJSON(w, http.StatusInternalServerError, message{"Error fetching tags"})
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type webhookPayload struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Entity    struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"entity"`
}

type revalidated struct {
	Revalidated bool     `json:"revalidated"`
	Tags        []string `json:"tags"`
	Paths       []string `json:"paths"`
	Entries     int      `json:"entries"`
}

func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		s.logger.Printf("error in revalidate request: %v", err)
		writeJSON(w, http.StatusBadRequest, message{"Error processing request"})
		return
	}

	// The verification handshake happens before the secret is shared.
	if payload.Type == "url_verification" {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": payload.Challenge})
		return
	}

	if !s.validSecret(r.URL.Query().Get("secret")) {
		writeJSON(w, http.StatusUnauthorized, message{"Invalid secret"})
		return
	}

	tags := []string{content.TagPosts, s.content.SourceName()}
	paths := []string{}
	if id := payload.Entity.ID; id != "" {
		slug, ok, err := s.content.SlugForID(r.Context(), id)
		if err != nil {
			s.logger.Printf("revalidate: could not resolve entity %s: %v", id, err)
		} else if ok {
			paths = append(paths, content.PostPath(slug))
		}
	}

	n := s.content.Invalidate(tags, paths)
	s.logger.Printf("revalidated %d entries (tags %v, paths %v)", n, tags, paths)
	writeJSON(w, http.StatusOK, revalidated{Revalidated: true, Tags: tags, Paths: paths, Entries: n})
}

func (s *Server) validSecret(got string) bool {
	if s.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) == 1
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	posts, err := s.content.ListPublishedPosts(r.Context())
	if err != nil {
		s.logger.Printf("error building sitemap: %v", err)
		http.Error(w, "Error building sitemap", http.StatusInternalServerError)
		return
	}

	set := sitemap.Build(s.baseURL, s.pages, posts, s.now())
	w.Header().Set("Content-Type", "application/xml")
	if err := sitemap.Generate(w, set); err != nil {
		s.logger.Printf("error writing sitemap: %v", err)
	}
}
