package main

// apiMessage is a message as served by the simulator API.
type apiMessage struct {
	Content string `json:"content"`
	PubDate string `json:"pub_date"`
	User    string `json:"user"`
}

type apiStatus struct {
	Status   int    `json:"status"`
	ErrorMsg string `json:"error_msg"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Pwd      string `json:"pwd"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type followRequest struct {
	Follow   string `json:"follow"`
	Unfollow string `json:"unfollow"`
}
