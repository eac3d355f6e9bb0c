package plan

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
)

const (
	tokenPrefix    = "page_token="
	planNamePrefix = "plan_"
	tokenSeparator = "@#$"
)

// Name returns the plan name of a full data request,
// plan_<query>_<country>_<city>, with query whitespace turned into '_'
func Name(req *model.FetchRequest) string {
	query := strings.Join(strings.Fields(req.BooleanQuery), "_")
	return planNamePrefix + query + "_" + req.CountryName + "_" + req.CityName
}

// Token returns the continuation token of a plan step. Step 0 has none.
func Token(planName string, index int) string {
	if index <= 0 {
		return ""
	}
	return tokenPrefix + planName + tokenSeparator + strconv.Itoa(index)
}

// ParseToken splits a continuation token into plan name and step index
func ParseToken(token string) (string, int, error) {
	if !strings.HasPrefix(token, tokenPrefix) {
		return "", 0, goerr.Wrap(ErrInvalidToken, "missing token prefix", goerr.V("token", token))
	}
	body := strings.TrimPrefix(token, tokenPrefix)

	sep := strings.LastIndex(body, tokenSeparator)
	if sep < 0 {
		return "", 0, goerr.Wrap(ErrInvalidToken, "missing index separator", goerr.V("token", token))
	}
	name := body[:sep]
	if !strings.HasPrefix(name, planNamePrefix) {
		return "", 0, goerr.Wrap(ErrInvalidToken, "invalid plan name", goerr.V("token", token))
	}

	index, err := strconv.Atoi(body[sep+len(tokenSeparator):])
	if err != nil || index < 0 {
		return "", 0, goerr.Wrap(ErrInvalidToken, "invalid step index", goerr.V("token", token))
	}
	return name, index, nil
}
