package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"tagbox/internal/gallery"
	"tagbox/internal/http/middleware"
	"tagbox/internal/http/respond"
	"tagbox/internal/models"
	"tagbox/internal/search"
)

const (
	maxUploadSize = 20 * 1024 * 1024 // 20MB
	memoryBuffer  = 2 * 1024 * 1024
)

type ImageHandler struct {
	gallery  *gallery.Gallery
	searcher *search.Searcher
	log      *slog.Logger
}

func NewImageHandler(g *gallery.Gallery, searcher *search.Searcher, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		gallery:  g,
		searcher: searcher,
		log:      logger,
	}
}

// visible reports whether user may look at img: public images, owners and
// admins, and any logged-in user.
func visible(user *models.User, img *models.Image) bool {
	return img.IsPublic() || img.CanView(user) || user.HasRight(models.RightUser)
}

type searchResponse struct {
	Images []models.ImageView `json:"images"`
	Total  int                `json:"total"`
	Page   int                `json:"page"`
	Pages  int                `json:"pages"`
	Tags   []string           `json:"tags"`
}

func (h *ImageHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			respond.Fail(w, http.StatusBadRequest, "Invalid page")
			return
		}
		page = n
	}

	res, err := h.searcher.Search(r.Context(), user, r.URL.Query().Get("query"), page)
	if err != nil {
		respond.Error(w, r, h.log, user, err)
		return
	}

	views := make([]models.ImageView, 0, len(res.Images))
	for _, img := range res.Images {
		views = append(views, img.View())
	}
	respond.JSON(w, http.StatusOK, searchResponse{
		Images: views,
		Total:  res.Total,
		Page:   res.Page,
		Pages:  res.Pages,
		Tags:   res.Tags,
	})
}

func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(memoryBuffer); err != nil {
		respond.Fail(w, http.StatusBadRequest, "Invalid upload")
		return
	}

	file, header, err := r.FormFile("image_file")
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, "Failed to get file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	// Sniffed content wins over the declared type when it is a type we store.
	mimeType := http.DetectContentType(data)
	if _, err := models.ExtensionFor(mimeType); err != nil {
		mimeType = header.Header.Get("Content-Type")
	}

	tags, err := parseTags(r.FormValue("tags"))
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, "Invalid tags")
		return
	}
	if !user.HasRight(models.RightAdmin) {
		tags = models.WithoutOwnerTags(tags)
	}
	tags = append(tags, models.OwnerTag(user.Username))

	img, err := h.gallery.SaveNewImage(r.Context(), data, mimeType, r.FormValue("summary"), tags)
	if err != nil {
		respond.Error(w, r, h.log, user, err)
		return
	}
	respond.JSON(w, http.StatusCreated, img.View())
}

func (h *ImageHandler) View(w http.ResponseWriter, r *http.Request) {
	img, ok := h.load(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, img.View())
}

// Edit replaces summary and tags. For non-admins the owner tags are kept
// as they were and any owner tags in the request are ignored.
func (h *ImageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	img, ok := h.load(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	if !img.CanEdit(user) {
		h.log.Warn("edit denied", "username", user.Username, "id", img.ID)
		respond.Fail(w, http.StatusForbidden, "Not allowed to edit this image")
		return
	}

	var req struct {
		Summary *string  `json:"summary"`
		Tags    []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Fail(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if req.Tags != nil {
		tags := req.Tags
		if !user.HasRight(models.RightAdmin) {
			tags = models.WithoutOwnerTags(tags)
			for _, tag := range img.TagList() {
				if models.IsOwnerTag(tag) {
					tags = append(tags, tag)
				}
			}
		}
		img.SetTags(tags...)
	}
	if req.Summary != nil {
		img.Summary = *req.Summary
	}

	if err := h.gallery.Save(r.Context(), img); err != nil {
		respond.Error(w, r, h.log, user, err)
		return
	}
	respond.JSON(w, http.StatusOK, img.View())
}

func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	existed, err := h.gallery.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, r, h.log, user, err)
		return
	}
	if !existed {
		respond.Fail(w, http.StatusNotFound, "Image not found")
		return
	}
	respond.Message(w, http.StatusOK, "Image deleted successfully")
}

// ServeOriginal and ServeThumbnail stream image bytes for
// /images/<id><ext> and /images/mini/<id><ext>.
func (h *ImageHandler) ServeOriginal(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

func (h *ImageHandler) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

func (h *ImageHandler) serve(w http.ResponseWriter, r *http.Request, thumbnail bool) {
	filename := mux.Vars(r)["filename"]
	ext := path.Ext(filename)
	img, ok := h.load(w, r, strings.TrimSuffix(filename, ext))
	if !ok {
		return
	}
	if img.Filename() != filename {
		respond.Fail(w, http.StatusNotFound, "Image not found")
		return
	}

	data, err := h.gallery.Open(r.Context(), img, thumbnail)
	if err != nil {
		respond.Error(w, r, h.log, middleware.UserFrom(r.Context()), err)
		return
	}

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// load fetches the image and enforces visibility, writing the error
// response itself when it returns false.
func (h *ImageHandler) load(w http.ResponseWriter, r *http.Request, id string) (*models.Image, bool) {
	user := middleware.UserFrom(r.Context())
	img, err := h.gallery.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, h.log, user, err)
		return nil, false
	}
	if img == nil || !visible(user, img) {
		respond.Fail(w, http.StatusNotFound, "Image not found")
		return nil, false
	}
	return img, true
}

// parseTags accepts a JSON array or a whitespace-separated list.
func parseTags(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return nil, err
		}
		return tags, nil
	}
	return strings.Fields(raw), nil
}
