package cql2

import "fmt"

var geometryTypes = map[string]string{
	"POINT":              "Point",
	"LINESTRING":         "LineString",
	"POLYGON":            "Polygon",
	"MULTIPOINT":         "MultiPoint",
	"MULTILINESTRING":    "MultiLineString",
	"MULTIPOLYGON":       "MultiPolygon",
	"GEOMETRYCOLLECTION": "GeometryCollection",
}

// geometry parses a WKT body (after the type keyword) into GeoJSON.
func (p *parser) geometry(kind string) (map[string]any, error) {
	typ := geometryTypes[kind]
	if kind == "GEOMETRYCOLLECTION" {
		if _, err := p.expect(tLParen, "("); err != nil {
			return nil, err
		}
		var geoms []any
		for {
			t, err := p.expect(tIdent, "geometry type")
			if err != nil {
				return nil, err
			}
			sub, ok := geometryTypes[upperASCII(t.text)]
			if !ok || sub == "GeometryCollection" {
				return nil, fmt.Errorf("unsupported geometry %s in collection", t)
			}
			g, err := p.geometry(upperASCII(t.text))
			if err != nil {
				return nil, err
			}
			geoms = append(geoms, g)
			if p.peek().kind == tComma {
				p.next()
				continue
			}
			if _, err := p.expect(tRParen, ")"); err != nil {
				return nil, err
			}
			return map[string]any{"type": typ, "geometries": geoms}, nil
		}
	}

	var (
		coords any
		err    error
	)
	switch kind {
	case "POINT":
		err = p.wrapped(func() error {
			c, e := p.position()
			coords = c
			return e
		})
	case "LINESTRING":
		coords, err = p.positions()
	case "MULTIPOINT":
		coords, err = p.multiPoint()
	case "POLYGON", "MULTILINESTRING":
		coords, err = p.rings()
	case "MULTIPOLYGON":
		if _, err := p.expect(tLParen, "("); err != nil {
			return nil, err
		}
		var polys []any
		for {
			r, err := p.rings()
			if err != nil {
				return nil, err
			}
			polys = append(polys, r)
			if p.peek().kind != tComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(tRParen, ")"); err != nil {
			return nil, err
		}
		coords = polys
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"type": typ, "coordinates": coords}, nil
}

func (p *parser) wrapped(fn func() error) error {
	if _, err := p.expect(tLParen, "("); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	_, err := p.expect(tRParen, ")")
	return err
}

// position reads 2 to 4 whitespace separated numbers.
func (p *parser) position() ([]any, error) {
	var out []any
	for {
		t := p.peek()
		neg := false
		if t.kind == tOp && (t.text == "-" || t.text == "+") {
			neg = t.text == "-"
			p.next()
			t = p.peek()
		}
		if t.kind != tNumber {
			break
		}
		p.next()
		v, err := number(t)
		if err != nil {
			return nil, err
		}
		if neg {
			v = -v
		}
		out = append(out, v)
	}
	if len(out) < 2 || len(out) > 4 {
		return nil, fmt.Errorf("coordinate needs 2 to 4 numbers, got %d near %s", len(out), p.peek())
	}
	return out, nil
}

// positions reads "(x y, x y, ...)".
func (p *parser) positions() ([]any, error) {
	var out []any
	err := p.wrapped(func() error {
		for {
			c, err := p.position()
			if err != nil {
				return err
			}
			out = append(out, c)
			if p.peek().kind != tComma {
				return nil
			}
			p.next()
		}
	})
	return out, err
}

// rings reads "((...), (...))".
func (p *parser) rings() ([]any, error) {
	var out []any
	err := p.wrapped(func() error {
		for {
			r, err := p.positions()
			if err != nil {
				return err
			}
			out = append(out, r)
			if p.peek().kind != tComma {
				return nil
			}
			p.next()
		}
	})
	return out, err
}

// MULTIPOINT accepts both "(1 2, 3 4)" and "((1 2), (3 4))".
func (p *parser) multiPoint() ([]any, error) {
	if p.peekAt(1).kind == tLParen {
		var out []any
		err := p.wrapped(func() error {
			for {
				var pt []any
				if err := p.wrapped(func() error {
					c, e := p.position()
					pt = c
					return e
				}); err != nil {
					return err
				}
				out = append(out, pt)
				if p.peek().kind != tComma {
					return nil
				}
				p.next()
			}
		})
		return out, err
	}
	return p.positions()
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}
