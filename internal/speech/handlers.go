package speech

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const maxRequestBody = 10 << 20 // 10 MiB

type speechToTextRequest struct {
	Audio string `json:"audio"` // base64-encoded WAV clip
}

type speechToTextResponse struct {
	RecognizedText string `json:"recognized_text"`
	ProcessedText  string `json:"processed_text"`
}

type textToSpeechRequest struct {
	Text string `json:"text"`
}

type textToSpeechResponse struct {
	Audio string `json:"audio"` // base64-encoded audio bytes
}

// errorResponse is the in-band failure shape. The browser client reads the
// error from the JSON body, so failures travel as HTTP 200.
type errorResponse struct {
	Error string `json:"error"`
}

// HandleSpeechToText accepts {"audio": <base64 WAV>}, recognizes it, and
// returns both the raw recognition and the cleaned-up text.
func (s *Service) HandleSpeechToText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var req speechToTextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, errorResponse{Error: "invalid request body"})
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		writeJSON(w, errorResponse{Error: "audio is not valid base64"})
		return
	}

	recognized, err := s.Recognize(r.Context(), bytes.NewReader(audio), "audio/wav")
	if err != nil {
		s.logger.Error("recognition failed", "error", err)
		writeJSON(w, errorResponse{Error: err.Error()})
		return
	}

	processed, err := s.Rewrite(r.Context(), recognized)
	if err != nil {
		// The raw recognition is still useful; degrade instead of failing.
		s.logger.Warn("rewrite failed, returning raw recognition", "error", err)
		processed = recognized
	}

	writeJSON(w, speechToTextResponse{RecognizedText: recognized, ProcessedText: processed})
}

// HandleTextToSpeech accepts {"text": ...} and returns the rendered audio as
// base64 so the browser can play it without a second round-trip.
func (s *Service) HandleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var req textToSpeechRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, errorResponse{Error: "text is required"})
		return
	}

	audio, err := s.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("synthesis failed", "error", err)
		writeJSON(w, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, textToSpeechResponse{Audio: base64.StdEncoding.EncodeToString(audio)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
