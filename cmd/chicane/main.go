// Package main is the CLI command itself.
package main

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/apexsim/chicane/collision"
	"github.com/apexsim/chicane/geometry"
)

const (
	// Flags.
	flagIn          = "in"
	flagSoup        = "soup"
	flagTree        = "tree"
	flagOutSoup     = "out-soup"
	flagOutTree     = "out-tree"
	flagMaxLeafSize = "max-leaf-size"
	flagMaxDepth    = "max-depth"
	flagCenter      = "center"
	flagRadius      = "radius"
	flagFrom        = "from"
	flagTo          = "to"
	flagNearest     = "nearest"
	flagOut         = "out"
	flagWidth       = "width"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "chicane",
		Usage: "cook, inspect and query static track collision data",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("chicane")
			} else {
				logger = zap.NewNop().Sugar()
			}

			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "cook",
				Usage: "build relocatable soup and tree blobs from source geometry",
				UsageText: fmt.Sprintf("chicane cook <%s> <%s> <%s> [%s] [%s]",
					flagIn, flagOutSoup, flagOutTree, flagMaxLeafSize, flagMaxDepth),
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagIn,
						Required: true,
						Usage:    "source geometry: .obj, .ply or an existing .soup blob",
					},
					&cli.PathFlag{
						Name:     flagOutSoup,
						Required: true,
						Usage:    "output path for the polygon soup blob",
					},
					&cli.PathFlag{
						Name:     flagOutTree,
						Required: true,
						Usage:    "output path for the collision tree blob",
					},
					&cli.IntFlag{
						Name:  flagMaxLeafSize,
						Value: collision.DefaultMaxLeafSize,
						Usage: "most polygons allowed in one tree leaf",
					},
					&cli.IntFlag{
						Name:  flagMaxDepth,
						Value: collision.DefaultMaxDepth,
						Usage: "most splits allowed along any root-to-leaf path",
					},
				},
				Action: func(c *cli.Context) error {
					return CookCommand(c, logger)
				},
			},
			{
				Name:      "info",
				Usage:     "describe a soup blob and optionally its tree",
				UsageText: fmt.Sprintf("chicane info <%s> [%s]", flagSoup, flagTree),
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagSoup,
						Required: true,
						Usage:    "polygon soup blob to describe",
					},
					&cli.PathFlag{
						Name:  flagTree,
						Usage: "collision tree blob built over the soup",
					},
				},
				Action: func(c *cli.Context) error {
					return InfoCommand(c, logger)
				},
			},
			{
				Name:  "query",
				Usage: "run collision queries against cooked blobs",
				Subcommands: []*cli.Command{
					{
						Name:  "sphere",
						Usage: "report every polygon a sphere touches",
						UsageText: fmt.Sprintf("chicane query sphere <%s> <%s> <%s> <%s>",
							flagSoup, flagTree, flagCenter, flagRadius),
						Flags: []cli.Flag{
							&cli.PathFlag{
								Name:     flagSoup,
								Required: true,
								Usage:    "polygon soup blob",
							},
							&cli.PathFlag{
								Name:     flagTree,
								Required: true,
								Usage:    "collision tree blob",
							},
							&cli.StringFlag{
								Name:     flagCenter,
								Required: true,
								Usage:    "sphere center as x,y,z",
							},
							&cli.Float64Flag{
								Name:     flagRadius,
								Required: true,
								Usage:    "sphere radius",
							},
						},
						Action: func(c *cli.Context) error {
							return QuerySphereCommand(c, logger)
						},
					},
					{
						Name:  "line",
						Usage: "report every polygon a segment crosses",
						UsageText: fmt.Sprintf("chicane query line <%s> <%s> <%s> <%s> [%s]",
							flagSoup, flagTree, flagFrom, flagTo, flagNearest),
						Flags: []cli.Flag{
							&cli.PathFlag{
								Name:     flagSoup,
								Required: true,
								Usage:    "polygon soup blob",
							},
							&cli.PathFlag{
								Name:     flagTree,
								Required: true,
								Usage:    "collision tree blob",
							},
							&cli.StringFlag{
								Name:     flagFrom,
								Required: true,
								Usage:    "segment start as x,y,z",
							},
							&cli.StringFlag{
								Name:     flagTo,
								Required: true,
								Usage:    "segment end as x,y,z",
							},
							&cli.BoolFlag{
								Name:  flagNearest,
								Usage: "report only the hit closest to the segment start",
							},
						},
						Action: func(c *cli.Context) error {
							return QueryLineCommand(c, logger)
						},
					},
				},
			},
			{
				Name:      "preview",
				Usage:     "render a top-down wireframe of a soup blob to a PNG",
				UsageText: fmt.Sprintf("chicane preview <%s> <%s> [%s]", flagSoup, flagOut, flagWidth),
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagSoup,
						Required: true,
						Usage:    "polygon soup blob to render",
					},
					&cli.PathFlag{
						Name:     flagOut,
						Required: true,
						Usage:    "output PNG path",
					},
					&cli.IntFlag{
						Name:  flagWidth,
						Value: 1024,
						Usage: "output image width in pixels",
					},
				},
				Action: func(c *cli.Context) error {
					return PreviewCommand(c, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// CookCommand loads source geometry, builds the collision tree over it and writes
// both relocatable blobs.
func CookCommand(c *cli.Context, logger golog.Logger) error {
	soup, err := loadSourceGeometry(c.Path(flagIn), logger)
	if err != nil {
		return err
	}

	tree, err := collision.BuildKDTree(soup, collision.KDTreeOptions{
		MaxLeafSize: c.Int(flagMaxLeafSize),
		MaxDepth:    c.Int(flagMaxDepth),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if err := collision.PolygonSoupToFile(c.Path(flagOutSoup), soup); err != nil {
		return err
	}
	if err := collision.KDTreeToFile(c.Path(flagOutTree), tree); err != nil {
		return err
	}

	stats := tree.Stats()
	fmt.Fprintf(c.App.Writer, "cooked %d vertices / %d polygons into %d nodes (%d leaves, depth %d, largest leaf %d)\n",
		soup.NumVertices(), soup.NumPolygons(), stats.Nodes, stats.Leaves, stats.MaxDepth, stats.LargestLeaf)
	return nil
}

// InfoCommand describes a soup blob and, when given one, the tree built over it.
func InfoCommand(c *cli.Context, logger golog.Logger) error {
	soup, err := collision.PolygonSoupFromFile(c.Path(flagSoup), logger)
	if err != nil {
		return err
	}

	b := soup.Bounds()
	fmt.Fprintf(c.App.Writer, "vertices: %d\npolygons: %d\n", soup.NumVertices(), soup.NumPolygons())
	fmt.Fprintf(c.App.Writer, "bounds: min (%.3f, %.3f, %.3f) max (%.3f, %.3f, %.3f)\n",
		b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)

	if c.Path(flagTree) == "" {
		return nil
	}
	tree, err := collision.KDTreeFromFile(c.Path(flagTree), soup, logger)
	if err != nil {
		return err
	}
	stats := tree.Stats()
	fmt.Fprintf(c.App.Writer, "tree: %d nodes, %d leaves, depth %d\n", stats.Nodes, stats.Leaves, stats.MaxDepth)
	fmt.Fprintf(c.App.Writer, "leaf sizes: largest %d, mean %.1f, stddev %.1f\n",
		stats.LargestLeaf, stats.MeanLeafSize, stats.LeafSizeStdDev)
	return nil
}

// QuerySphereCommand reports every polygon the given sphere touches.
func QuerySphereCommand(c *cli.Context, logger golog.Logger) error {
	tree, err := loadTrackTree(c, logger)
	if err != nil {
		return err
	}
	center, err := parseVec(c.String(flagCenter))
	if err != nil {
		return err
	}
	radius := c.Float64(flagRadius)
	if !(radius > 0) || math.IsInf(radius, 0) {
		return errors.Errorf("radius must be positive and finite, got %v", radius)
	}

	contacts := 0
	tree.IntersectSphere(geometry.NewSphere(center, radius), func(hit collision.Intersection) bool {
		contacts++
		fmt.Fprintf(c.App.Writer, "polygon %d surface %d flags 0x%04x depth %.4f at (%.3f, %.3f, %.3f) normal (%.3f, %.3f, %.3f)\n",
			hit.PolygonIndex, hit.Surface, hit.Flags, hit.Depth,
			hit.Point.X, hit.Point.Y, hit.Point.Z,
			hit.Normal.X, hit.Normal.Y, hit.Normal.Z)
		return true
	})
	fmt.Fprintf(c.App.Writer, "%d contacts\n", contacts)
	return nil
}

// QueryLineCommand reports the polygons a segment crosses, or with the nearest flag
// only the hit closest to the segment start.
func QueryLineCommand(c *cli.Context, logger golog.Logger) error {
	tree, err := loadTrackTree(c, logger)
	if err != nil {
		return err
	}
	from, err := parseVec(c.String(flagFrom))
	if err != nil {
		return err
	}
	to, err := parseVec(c.String(flagTo))
	if err != nil {
		return err
	}
	seg := geometry.NewSegment(from, to)

	printHit := func(hit collision.Intersection) {
		fmt.Fprintf(c.App.Writer, "polygon %d surface %d flags 0x%04x t %.4f at (%.3f, %.3f, %.3f) normal (%.3f, %.3f, %.3f)\n",
			hit.PolygonIndex, hit.Surface, hit.Flags, hit.T,
			hit.Point.X, hit.Point.Y, hit.Point.Z,
			hit.Normal.X, hit.Normal.Y, hit.Normal.Z)
	}

	if c.Bool(flagNearest) {
		hit, found := tree.IntersectLineNearest(seg)
		if !found {
			fmt.Fprintln(c.App.Writer, "no hit")
			return nil
		}
		printHit(hit)
		return nil
	}

	hits := 0
	tree.IntersectLine(seg, func(hit collision.Intersection) bool {
		hits++
		printHit(hit)
		return true
	})
	fmt.Fprintf(c.App.Writer, "%d hits\n", hits)
	return nil
}

// PreviewCommand renders the soup's polygon edges seen from straight above (world x
// right, world y up) into a PNG.
func PreviewCommand(c *cli.Context, logger golog.Logger) error {
	soup, err := collision.PolygonSoupFromFile(c.Path(flagSoup), logger)
	if err != nil {
		return err
	}
	width := c.Int(flagWidth)
	if width < 64 {
		return errors.Errorf("width must be at least 64 pixels, got %d", width)
	}

	bounds := soup.Bounds()
	if !bounds.IsFinite() {
		return errors.New("soup bounds are not finite, nothing to draw")
	}
	size := bounds.Size()
	const margin = 16.0
	span := math.Max(size.X, size.Y)
	if span <= 0 {
		span = 1
	}
	scale := (float64(width) - 2*margin) / span
	height := int(size.Y*scale+2*margin) + 1

	dc := gg.NewContext(width, height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(0, 1, 0)
	dc.SetLineWidth(1)

	// Image y grows downward, world y grows upward.
	toImage := func(v r3.Vector) (float64, float64) {
		return margin + (v.X-bounds.Min.X)*scale, float64(height) - margin - (v.Y-bounds.Min.Y)*scale
	}

	drawn := 0
	soup.IteratePolygons(func(i int, p collision.Polygon) bool {
		pts, n := soup.PolygonVertices(i)
		for s := 0; s < n; s++ {
			if !geometry.VectorIsFinite(pts[s]) {
				return true
			}
		}
		x, y := toImage(pts[0])
		dc.MoveTo(x, y)
		for s := 1; s < n; s++ {
			x, y = toImage(pts[s])
			dc.LineTo(x, y)
		}
		dc.ClosePath()
		dc.Stroke()
		drawn++
		return true
	})
	if err := dc.SavePNG(c.Path(flagOut)); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "wrote %s (%dx%d, %d polygons)\n", c.Path(flagOut), width, height, drawn)
	return nil
}

// loadSourceGeometry reads cook input by extension: modeling formats or an already
// cooked soup blob.
func loadSourceGeometry(fn string, logger golog.Logger) (*collision.PolygonSoup, error) {
	switch ext := strings.ToLower(filepath.Ext(fn)); ext {
	case ".obj":
		return collision.NewPolygonSoupFromOBJFile(fn, logger)
	case ".ply":
		return collision.NewPolygonSoupFromPLYFile(fn, logger)
	case ".soup":
		return collision.PolygonSoupFromFile(fn, logger)
	default:
		return nil, errors.Errorf("unsupported source geometry %q (want .obj, .ply or .soup)", ext)
	}
}

// loadTrackTree loads the soup blob and the tree blob bound to it.
func loadTrackTree(c *cli.Context, logger golog.Logger) (*collision.KDTree, error) {
	soup, err := collision.PolygonSoupFromFile(c.Path(flagSoup), logger)
	if err != nil {
		return nil, err
	}
	return collision.KDTreeFromFile(c.Path(flagTree), soup, logger)
}

// parseVec parses an x,y,z triple into a vector.
func parseVec(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, errors.Errorf("expected x,y,z but got %q", s)
	}
	var coords [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "coordinate %d of %q", i, s)
		}
		coords[i] = v
	}
	vec := r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]}
	if !geometry.VectorIsFinite(vec) {
		return r3.Vector{}, errors.Errorf("coordinates must be finite, got %q", s)
	}
	return vec, nil
}
