// ABOUTME: HTTP handler listing static support resources
// ABOUTME: Filters by category and location tag, newest first

package gateway

import (
	"net/http"
	"time"

	"github.com/2389/psychat-gateway/internal/store"
)

// ResourceResponse is the JSON form of a resource listing.
type ResourceResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	LocationTag string `json:"location_tag,omitempty"`
	URL         string `json:"url,omitempty"`
	Phone       string `json:"phone,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (g *Gateway) handleListResources(w http.ResponseWriter, r *http.Request) {
	limit, ok := g.parseLimit(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	resources, err := g.store.ListResources(r.Context(), store.ResourceFilter{
		Category: q.Get("category"),
		Location: q.Get("location"),
		Limit:    limit,
	})
	if err != nil {
		g.logger.Error("failed to list resources", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]ResourceResponse, 0, len(resources))
	for _, res := range resources {
		out = append(out, ResourceResponse{
			ID:          res.ID,
			Title:       res.Title,
			Description: res.Description,
			Category:    res.Category,
			LocationTag: res.LocationTag,
			URL:         res.URL,
			Phone:       res.Phone,
			CreatedAt:   res.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
