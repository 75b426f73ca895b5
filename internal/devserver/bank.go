package devserver

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed bank.yaml
var defaultBankYAML []byte

// BankQuestion is a question with its answer key.
type BankQuestion struct {
	Text        string   `yaml:"text"`
	Options     []string `yaml:"options"`
	Answer      int      `yaml:"answer"`
	Explanation string   `yaml:"explanation,omitempty"`
}

// BankCategory groups questions under a playable category.
type BankCategory struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Questions   []BankQuestion `yaml:"questions"`
}

// Bank is the question bank served by the development backend.
type Bank struct {
	Categories []BankCategory `yaml:"categories"`
}

// DefaultBank returns the built-in bank.
func DefaultBank() Bank {
	bank, err := ParseBank(defaultBankYAML)
	if err != nil {
		panic(fmt.Sprintf("devserver: built-in bank is invalid: %v", err))
	}
	return bank
}

// LoadBank reads a YAML bank from path.
func LoadBank(path string) (Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bank{}, fmt.Errorf("devserver: read bank %s: %w", path, err)
	}
	bank, err := ParseBank(data)
	if err != nil {
		return Bank{}, fmt.Errorf("devserver: %s: %w", path, err)
	}
	return bank, nil
}

// ParseBank decodes and validates a YAML bank.
func ParseBank(data []byte) (Bank, error) {
	var bank Bank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return Bank{}, fmt.Errorf("parse bank: %w", err)
	}
	bank.normalize()
	if err := bank.validate(); err != nil {
		return Bank{}, err
	}
	return bank, nil
}

// Category looks up a category by id.
func (b Bank) Category(id string) (BankCategory, bool) {
	for _, cat := range b.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return BankCategory{}, false
}

func (b *Bank) normalize() {
	for i := range b.Categories {
		cat := &b.Categories[i]
		cat.ID = strings.ToLower(strings.TrimSpace(cat.ID))
		cat.Name = strings.TrimSpace(cat.Name)
		if cat.Name == "" {
			cat.Name = cat.ID
		}
		for j := range cat.Questions {
			cat.Questions[j].Text = strings.TrimSpace(cat.Questions[j].Text)
		}
	}
}

func (b Bank) validate() error {
	if len(b.Categories) == 0 {
		return fmt.Errorf("bank has no categories")
	}
	seen := map[string]bool{}
	for i, cat := range b.Categories {
		if cat.ID == "" {
			return fmt.Errorf("categories[%d]: id is required", i)
		}
		if seen[cat.ID] {
			return fmt.Errorf("categories[%d]: duplicate id %q", i, cat.ID)
		}
		seen[cat.ID] = true
		if len(cat.Questions) == 0 {
			return fmt.Errorf("category %s: no questions", cat.ID)
		}
		for j, q := range cat.Questions {
			if q.Text == "" {
				return fmt.Errorf("category %s question %d: text is required", cat.ID, j)
			}
			if len(q.Options) < 2 {
				return fmt.Errorf("category %s question %d: needs at least two options", cat.ID, j)
			}
			if q.Answer < 0 || q.Answer >= len(q.Options) {
				return fmt.Errorf("category %s question %d: answer %d out of range", cat.ID, j, q.Answer)
			}
		}
	}
	return nil
}
