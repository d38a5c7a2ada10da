package matrix

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ValentinKolb/dVol/lib/fault"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// ApprovalStatus is the sign-off state of a matrix.
type ApprovalStatus string

const (
	StatusApproved ApprovalStatus = "approved"
	StatusPending  ApprovalStatus = "pending"
	StatusRejected ApprovalStatus = "rejected"
)

// Approval is the human sign-off record of a matrix.
type Approval struct {
	Status     ApprovalStatus `json:"status" yaml:"status"`
	ApprovedAt *string        `json:"approvedAt" yaml:"approvedAt"`
	ApprovedBy *string        `json:"approvedBy" yaml:"approvedBy"`
}

// Dataset describes the benchmarked dataset shape.
type Dataset struct {
	ChunkShape [5]int `json:"chunkShape" yaml:"chunkShape"` // x, y, z, time, channel
	Channels   int    `json:"channels" yaml:"channels"`
}

// Acceptance holds the budgets of a case.
type Acceptance struct {
	AtlasStepMaxMs   map[string]float64 `json:"atlasStepMaxMs" yaml:"atlasStepMaxMs"`
	Scale1RequestMin float64            `json:"scale1RequestMin" yaml:"scale1RequestMin"`
}

// Case is a single benchmark case.
type Case struct {
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Dataset    Dataset    `json:"dataset" yaml:"dataset"`
	Acceptance Acceptance `json:"acceptance" yaml:"acceptance"`
}

// Label returns the case name or its position if it has none.
func (c Case) Label(i int) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("cases[%d]", i)
}

// Config is a validated benchmark matrix. It is not modified after Normalize.
type Config struct {
	Approval Approval `json:"approval" yaml:"approval"`
	Cases    []Case   `json:"cases" yaml:"cases"`
}

// String returns a short summary of the matrix
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "approval: %s", c.Approval.Status)
	if c.Approval.ApprovedBy != nil {
		fmt.Fprintf(&sb, " by %s", *c.Approval.ApprovedBy)
	}
	if c.Approval.ApprovedAt != nil {
		fmt.Fprintf(&sb, " at %s", *c.Approval.ApprovedAt)
	}
	fmt.Fprintf(&sb, ", %d cases", len(c.Cases))
	return sb.String()
}

// --------------------------------------------------------------------------
// Normalization
// --------------------------------------------------------------------------

// Normalize validates an untyped document and converts it into a Config.
// The first violation aborts normalization.
func Normalize(doc any) (*Config, error) {
	root, err := object(doc, "$")
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if cfg.Approval, err = normalizeApproval(root["approval"]); err != nil {
		return nil, err
	}

	rawCases, ok := root["cases"].([]any)
	if !ok {
		return nil, fault.NewValidation("cases", "must be an array, got %s", typeName(root["cases"]))
	}
	if len(rawCases) == 0 {
		return nil, fault.NewValidation("cases", "at least one case is required")
	}

	cfg.Cases = make([]Case, len(rawCases))
	for i, raw := range rawCases {
		c, err := normalizeCase(raw, fmt.Sprintf("cases[%d]", i))
		if err != nil {
			return nil, err
		}
		cfg.Cases[i] = c
	}
	return cfg, nil
}

func normalizeApproval(raw any) (Approval, error) {
	a := Approval{}
	obj, err := object(raw, "approval")
	if err != nil {
		return a, err
	}

	status, ok := obj["status"].(string)
	switch ApprovalStatus(status) {
	case StatusApproved, StatusPending, StatusRejected:
		a.Status = ApprovalStatus(status)
	default:
		if !ok {
			return a, fault.NewValidation("approval.status", "must be a string, got %s", typeName(obj["status"]))
		}
		return a, fault.NewValidation("approval.status", "must be one of approved, pending, rejected, got %q", status)
	}

	if a.ApprovedAt, err = optionalString(obj["approvedAt"], "approval.approvedAt"); err != nil {
		return a, err
	}
	if a.ApprovedBy, err = optionalString(obj["approvedBy"], "approval.approvedBy"); err != nil {
		return a, err
	}
	return a, nil
}

func normalizeCase(raw any, path string) (Case, error) {
	c := Case{}
	obj, err := object(raw, path)
	if err != nil {
		return c, err
	}

	if name, ok := obj["name"]; ok && name != nil {
		s, ok := name.(string)
		if !ok {
			return c, fault.NewValidation(path+".name", "must be a string, got %s", typeName(name))
		}
		c.Name = s
	}

	// Dataset
	dsPath := path + ".dataset"
	ds, err := object(obj["dataset"], dsPath)
	if err != nil {
		return c, err
	}
	channels, err := positiveInt(ds["channels"], dsPath+".channels")
	if err != nil {
		return c, err
	}
	c.Dataset.Channels = channels

	shapePath := dsPath + ".chunkShape"
	shape, ok := ds["chunkShape"].([]any)
	if !ok {
		return c, fault.NewValidation(shapePath, "must be an array, got %s", typeName(ds["chunkShape"]))
	}
	if len(shape) != 5 {
		return c, fault.NewValidation(shapePath, "must have exactly 5 elements [x, y, z, t, c], got %d", len(shape))
	}
	for i, v := range shape {
		n, err := positiveInt(v, fmt.Sprintf("%s[%d]", shapePath, i))
		if err != nil {
			return c, err
		}
		c.Dataset.ChunkShape[i] = n
	}
	if c.Dataset.ChunkShape[4] != channels {
		return c, fault.NewValidation(shapePath+"[4]", "channel axis is %d but dataset declares %d channels", c.Dataset.ChunkShape[4], channels)
	}

	// Acceptance
	accPath := path + ".acceptance"
	acc, err := object(obj["acceptance"], accPath)
	if err != nil {
		return c, err
	}

	budgetPath := accPath + ".atlasStepMaxMs"
	budgets, err := object(acc["atlasStepMaxMs"], budgetPath)
	if err != nil {
		return c, err
	}
	c.Acceptance.AtlasStepMaxMs = make(map[string]float64, len(budgets))
	for _, key := range sortedKeys(budgets) {
		keyPath := budgetPath + "." + key
		v, err := finite(budgets[key], keyPath)
		if err != nil {
			return c, err
		}
		if v <= 0 {
			return c, fault.NewValidation(keyPath, "must be greater than zero, got %v", v)
		}
		c.Acceptance.AtlasStepMaxMs[key] = v
	}

	minPath := accPath + ".scale1RequestMin"
	reqMin, err := finite(acc["scale1RequestMin"], minPath)
	if err != nil {
		return c, err
	}
	if reqMin < 0 {
		return c, fault.NewValidation(minPath, "must be at least zero, got %v", reqMin)
	}
	c.Acceptance.Scale1RequestMin = reqMin

	return c, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// object asserts that v is a string keyed map
func object(v any, path string) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, fault.NewValidation(path, "has non-string key %v", k)
			}
			out[ks] = val
		}
		return out, nil
	default:
		return nil, fault.NewValidation(path, "must be an object, got %s", typeName(v))
	}
}

// number converts the numeric types produced by JSON and YAML decoders
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func finite(v any, path string) (float64, error) {
	f, ok := number(v)
	if !ok {
		return 0, fault.NewValidation(path, "must be a number, got %s", typeName(v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fault.NewValidation(path, "must be finite, got %v", f)
	}
	return f, nil
}

func positiveInt(v any, path string) (int, error) {
	f, err := finite(v, path)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return 0, fault.NewValidation(path, "must be a positive integer, got %v", f)
	}
	return int(f), nil
}

func optionalString(v any, path string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fault.NewValidation(path, "must be a string or null, got %s", typeName(v))
	}
	return &s, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any, map[any]any:
		return "object"
	default:
		if _, ok := number(v); ok {
			return "number"
		}
		return fmt.Sprintf("%T", v)
	}
}
