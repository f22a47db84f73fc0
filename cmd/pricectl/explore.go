package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kjannette/stationprice/internal/models"
	"github.com/kjannette/stationprice/internal/service"
	"github.com/kjannette/stationprice/internal/view"
)

// runExplore drives a view session from line commands. Command errors are
// printed and the loop continues; only read errors stop it.
func runExplore(ctx context.Context, in io.Reader, out io.Writer, format string, sess *view.Session) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		var err error
		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			return nil
		case "bbox", "pan":
			err = explorePan(ctx, out, format, sess, fields[1:])
		case "price":
			err = explorePrice(ctx, out, format, sess, fields[1:])
		case "show":
			v, seq := sess.Current()
			if v == nil {
				err = fmt.Errorf("no viewport yet")
				break
			}
			fmt.Fprintf(out, "view #%d\n", seq)
			err = printView(out, format, v)
		default:
			err = fmt.Errorf("unknown command %q", fields[0])
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return sc.Err()
}

func explorePan(ctx context.Context, out io.Writer, format string, sess *view.Session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: bbox <south>,<west>,<north>,<east>")
	}
	vp, err := models.ParseBBox(args[0])
	if err != nil {
		return err
	}
	v, seq, err := sess.Pan(ctx, vp)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "view #%d %s\n", seq, vp)
	return printView(out, format, v)
}

func explorePrice(ctx context.Context, out io.Writer, format string, sess *view.Session, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("usage: price <lat> <lon> <price> [id]")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("lon: %w", err)
	}
	price, err := service.ParsePrice(args[2])
	if err != nil {
		return err
	}

	sub := service.Submission{Coordinate: models.Coordinate{Lat: lat, Lon: lon}, Price: price}
	if len(args) == 4 {
		id, err := models.ParseIdentity(args[3])
		if err != nil {
			return err
		}
		sub.ID = &id
	}

	a, err := sess.Submit(ctx, sub)
	if err != nil {
		return err
	}
	return printAnnotation(out, format, a)
}
