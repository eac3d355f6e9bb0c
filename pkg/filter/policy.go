package filter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

// PolicyQuery is the rule evaluated for every feature
const PolicyQuery = "data.placeset.keep"

// Policy drops features rejected by a Rego rule. The rule receives the
// feature as input ({"type", "geometry", "properties"}) and keeps it unless
// it evaluates to false.
type Policy struct {
	query *rego.PreparedEvalQuery
}

// LoadPolicy prepares all .rego files in dir. It returns nil without error
// when dir has no policy file.
func LoadPolicy(ctx context.Context, dir string) (*Policy, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query(PolicyQuery))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy", goerr.V("dir", dir))
	}
	return &Policy{query: &prepared}, nil
}

// Apply evaluates the rule for each feature. A nil Policy keeps everything.
func (p *Policy) Apply(ctx context.Context, ds *model.Dataset) (*model.Dataset, error) {
	if p == nil || ds == nil {
		return ds, nil
	}

	kept := make([]*model.Feature, 0, len(ds.Features))
	for _, f := range ds.Features {
		keep, err := p.keep(ctx, f)
		if err != nil {
			return nil, err
		}
		if keep {
			kept = append(kept, f)
		}
	}
	return &model.Dataset{Type: ds.Type, Features: kept, Properties: ds.Properties}, nil
}

func (p *Policy) keep(ctx context.Context, f *model.Feature) (bool, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return false, goerr.Wrap(err, "failed to encode feature", goerr.V("id", f.ID()))
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return false, goerr.Wrap(err, "failed to decode feature", goerr.V("id", f.ID()))
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate policy", goerr.V("id", f.ID()))
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return true, nil
	}

	keep, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, goerr.New("policy result is not a boolean",
			goerr.V("id", f.ID()), goerr.V("value", rs[0].Expressions[0].Value))
	}
	return keep, nil
}
