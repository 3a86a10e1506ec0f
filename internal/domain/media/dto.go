package media

// MediaURI is the path parameter of every per-object route.
type MediaURI struct {
	ID string `uri:"id" binding:"required,max=255"`
}

type MediaResponse struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	State        State  `json:"state"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	HasThumbnail bool   `json:"has_thumbnail"`
	CreatedAt    int64  `json:"created_at"`
	DeletedAt    *int64 `json:"deleted_at,omitempty"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type UploadFailure struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type UploadResponse struct {
	Uploaded []MediaResponse `json:"uploaded"`
	Failed   []UploadFailure `json:"failed"`
}

func toResponse(r *Record, basePath string) MediaResponse {
	resp := MediaResponse{
		ID:           r.ObjectID,
		Kind:         r.Kind,
		State:        r.State,
		Name:         r.OriginalName,
		MimeType:     r.MimeType,
		Size:         r.Size,
		HasThumbnail: r.HasThumbnail,
		CreatedAt:    r.CreatedAt,
		DeletedAt:    r.DeletedAt,
	}
	if r.State == StateBinned {
		resp.URL = basePath + "/bin/" + r.ObjectID
	} else {
		resp.URL = basePath + "/media/" + r.ObjectID
	}
	if r.Kind == KindImage {
		resp.ThumbnailURL = basePath + "/media/" + r.ObjectID + "/thumbnail"
	}
	return resp
}

func toResponses(recs []*Record, basePath string) []MediaResponse {
	out := make([]MediaResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toResponse(r, basePath))
	}
	return out
}
