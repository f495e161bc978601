package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gosimple/slug"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyPickList = errors.New("empty_pick_list")

// PickListData is the printable view of a ticket handed to whoever pulls
// the cable from stock.
type PickListData struct {
	TicketID    int64
	Status      string
	Priority    string
	RequestedBy string
	AssignedTo  string
	Location    string
	Notes       string
	CreatedAt   string
	Items       []PickListItem
}

type PickListItem struct {
	CableType   string
	CableLength string
	Quantity    int
}

// FileName is the download name, e.g. picklist-42-building-a-floor-2.pdf.
func (d PickListData) FileName() string {
	name := fmt.Sprintf("picklist-%d", d.TicketID)
	if loc := slug.Make(d.Location); loc != "" {
		name += "-" + loc
	}
	return name + ".pdf"
}

func (p *PDFProvider) GeneratePickList(ctx context.Context, data PickListData) (io.Reader, error) {
	if len(data.Items) == 0 {
		return nil, ErrEmptyPickList
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, fmt.Sprintf("Cable Pick List #%d", data.TicketID), props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, strings.ToUpper(data.Priority)+" PRIORITY", props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Requested by: "+orDash(data.RequestedBy), props.Text{Top: 0}),
			text.New("Assigned to: "+orDash(data.AssignedTo), props.Text{Top: 5}),
			text.New("Created: "+orDash(data.CreatedAt), props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Status: "+orDash(data.Status), props.Text{Top: 0}),
			text.New("Location: "+orDash(data.Location), props.Text{Top: 5}),
		),
	)

	if strings.TrimSpace(data.Notes) != "" {
		m.AddRow(15,
			text.NewCol(12, "Notes: "+data.Notes, props.Text{Size: 9}),
		)
	}

	m.AddRow(10,
		text.NewCol(6, "Cable type", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Length", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "Picked", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	total := 0
	for _, item := range data.Items {
		total += item.Quantity
		m.AddRow(8,
			text.NewCol(6, item.CableType, props.Text{Size: 9}),
			text.NewCol(3, item.CableLength, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, "[ ]", props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total units", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, fmt.Sprintf("%d", total), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		col.New(1),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
