package transfer

// GraphError is the error envelope shared by the Facebook, Instagram and
// Threads Graph APIs.
type GraphError struct {
	Error *struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

type GraphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type Permalink struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
}

type FeedRequest struct {
	Message       string          `json:"message,omitempty"`
	AttachedMedia []AttachedMedia `json:"attached_media,omitempty"`
	AccessToken   string          `json:"access_token"`
}

type AttachedMedia struct {
	MediaFbid string `json:"media_fbid"`
}

// ContainerRequest creates an Instagram or Threads media container. Only the
// fields relevant to the media type are sent.
type ContainerRequest struct {
	MediaType      string `json:"media_type,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	VideoURL       string `json:"video_url,omitempty"`
	Caption        string `json:"caption,omitempty"`
	Text           string `json:"text,omitempty"`
	IsCarouselItem bool   `json:"is_carousel_item,omitempty"`
	Children       string `json:"children,omitempty"`
	AccessToken    string `json:"access_token"`
}

type PublishRequest struct {
	CreationID  string `json:"creation_id"`
	AccessToken string `json:"access_token"`
}

// RefreshedToken is returned by the Instagram and Threads long-lived token
// refresh endpoints.
type RefreshedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
