package plan

import (
	"math"
	"strconv"

	"github.com/m-mizutani/placeset/pkg/model"
)

// quadrant offsets as (north, east) signs: NE, NW, SW, SE
var quadrants = [4][2]float64{
	{1, 1},
	{1, -1},
	{-1, -1},
	{-1, 1},
}

// Tile is one circle of a coverage tiling
type Tile struct {
	Circle    string
	Geography model.Geography
}

// Tiles covers root with concentric levels of circles. Every circle of one
// level is split into four circles of radius r/√2 centred r/2 north/south
// and r/2 east/west of it, so together they cover the parent's bounding
// square. Tiles are returned breadth first and labelled "1", "1.1", "1.1.1".
func Tiles(root model.Geography, depth int) []Tile {
	tiles := []Tile{{Circle: "1", Geography: root}}
	level := tiles
	for d := 1; d < depth; d++ {
		var next []Tile
		for _, parent := range level {
			r := parent.Geography.Radius
			for i, q := range quadrants {
				next = append(next, Tile{
					Circle:    parent.Circle + "." + strconv.Itoa(i+1),
					Geography: parent.Geography.Offset(q[0]*r/2, q[1]*r/2, r/math.Sqrt2),
				})
			}
		}
		tiles = append(tiles, next...)
		level = next
	}
	return tiles
}

func newPlan(name string, req *model.FetchRequest, depth int) *model.Plan {
	tiles := Tiles(req.Geography, depth)
	steps := make([]*model.PlanStep, len(tiles))
	for i, t := range tiles {
		steps[i] = &model.PlanStep{
			Index:     i,
			Circle:    t.Circle,
			Geography: t.Geography,
			Query:     req.BooleanQuery,
			Token:     Token(name, i),
			Status:    model.StepStatusPending,
		}
	}
	return &model.Plan{Name: name, Steps: steps}
}
