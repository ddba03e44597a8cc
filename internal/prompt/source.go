package prompt

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultInstructions is the built-in assistant persona. An override file
// replaces it wholesale.
const DefaultInstructions = "You are a helpful barista for a coffee house. " +
	"You are designed to answer questions and take orders for beverages and food. " +
	"For taking orders, you will roleplay and ask for the user's name, the items they want to order, and the size of the items. " +
	"You help answer questions about beverages, food, nutrition, and prices. " +
	"Your responses are always grounded in the information contained in our knowledge base. " +
	"Please ensure that your answers are accurate and relevant, always based on these documents.\n\n" +
	"Always use the following step-by-step instructions to respond:\n\n" +
	"1. Search First: Always use the 'search' tool to check the knowledge base before answering a question.\n" +
	"2. Cite Sources: Always use the 'report_grounding' tool to report the source of information found in the knowledge base.\n" +
	"3. Track the Order: Always use the 'update_order' tool when the user adds or removes an item, so the order stays accurate.\n" +
	"4. Keep It Simple: Produce an answer that is short, concise, and helpful. If the answer isn't available in the knowledge base, simply state that the information is unavailable.\n" +
	"5. Tailor for Audio: Answers should be optimized for listening, ideally a single sentence or a few succinct phrases. Avoid reading file names, source names, or any irrelevant data out loud.\n" +
	"6. Finish Order: Tally the order and ask if the user would like to add anything else.\n\n" +
	"Your goal is to be accurate, grounded in the documents, and as engaging as possible while keeping answers succinct."

// Source holds the current instructions text. Instructions is safe to call
// from any goroutine; Reload swaps the text atomically.
type Source struct {
	path string

	mu   sync.RWMutex
	text string
}

// NewSource returns a Source backed by the override file at path, falling
// back to the built-in instructions when path is empty. A non-empty path
// that cannot be read is an error: a misspelled override should fail loudly
// at startup, not silently serve the default.
func NewSource(path string) (*Source, error) {
	s := &Source{path: path, text: DefaultInstructions}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Instructions returns the current instructions text.
func (s *Source) Instructions() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Reload re-reads the override file. An empty or whitespace-only file
// restores the built-in instructions.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read instructions override: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		text = DefaultInstructions
	}
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
	return nil
}
