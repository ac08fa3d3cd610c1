package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"imss/harvester/internal/domain"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// Years 1999-2010 are served by the portal but missing from its year selector
var hiddenYears = []string{"1999", "2000", "2001", "2002", "2003", "2004", "2005", "2006", "2007", "2008", "2009", "2010"}

var bracketHint = regexp.MustCompile(`\[.*\]`)

// Parser reads the portal's HTML and JSON pages
type Parser struct {
	baseURL string
}

func NewParser(baseURL string) *Parser {
	return &Parser{
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func newDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// absolute resolves a portal path against the base URL
func (p *Parser) absolute(href string) string {
	if strings.HasPrefix(href, "/") {
		return p.baseURL + href
	}
	return href
}

// ParsePeriods returns the hidden years followed by the years of the #pr selector
func (p *Parser) ParsePeriods(html string) ([]string, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}

	options := doc.Find("#pr option")
	if options.Length() == 0 {
		return nil, errors.New("year selector #pr not found")
	}

	seen := make(map[string]bool)
	periods := make([]string, 0, len(hiddenYears)+options.Length())
	add := func(year string) {
		if year == "" || seen[year] {
			return
		}
		seen[year] = true
		periods = append(periods, year)
	}

	for _, y := range hiddenYears {
		add(y)
	}
	options.Each(func(i int, o *goquery.Selection) {
		value, _ := o.Attr("value")
		add(strings.TrimSpace(value))
	})

	return periods, nil
}

// ParseTree builds the category tree of a period from its landing page
func (p *Parser) ParseTree(html, periodID string) (*domain.Period, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}

	rows := doc.Find("#divcontenidos div.container1")
	if rows.Length() == 0 {
		return nil, fmt.Errorf("no categories found for period %s", periodID)
	}

	period := &domain.Period{ID: periodID}
	rows.Each(func(i int, row *goquery.Selection) {
		cat := &domain.Category{ID: idSuffix(row)}
		row.Find("div").Each(func(j int, cell *goquery.Selection) {
			switch j {
			case 1:
				cat.Name = strings.TrimSpace(cell.Text())
			case 2:
				cat.Total = strings.TrimSpace(cell.Text())
			}
		})

		if !domain.IsZeroTotal(cat.Total) {
			cat.Subcategories = p.parseSubcategories(doc, cat.ID)
		}
		period.Categories = append(period.Categories, cat)
	})

	period.Total = domain.SumTotals(period.Categories)
	log.Debugf("Found %d categories for %s", len(period.Categories), periodID)
	return period, nil
}

func (p *Parser) parseSubcategories(doc *goquery.Document, categoryID string) []*domain.Subcategory {
	var subcategories []*domain.Subcategory

	doc.Find("#niv1_" + categoryID + " div.container2").Each(func(i int, row *goquery.Selection) {
		sub := &domain.Subcategory{ID: idSuffix(row)}
		row.Find("div").Each(func(j int, cell *goquery.Selection) {
			switch j {
			case 2:
				sub.Name, sub.URL, sub.Description = parseNodeCell(cell)
			case 3:
				sub.Total = strings.TrimSpace(cell.Text())
			}
		})

		if sub.URL == "" {
			sub.SubItems = p.parseSubItems(doc, sub.ID)
		}
		subcategories = append(subcategories, sub)
	})

	return subcategories
}

func (p *Parser) parseSubItems(doc *goquery.Document, subcategoryID string) []*domain.SubItem {
	var items []*domain.SubItem

	doc.Find("#niv2_" + subcategoryID + " div.container3").Each(func(i int, row *goquery.Selection) {
		item := &domain.SubItem{}
		row.Find("div").Each(func(j int, cell *goquery.Selection) {
			switch j {
			case 2:
				item.Name, item.URL, item.Description = parseNodeCell(cell)
				item.ID = subParam(item.URL)
			case 3:
				item.Total = strings.TrimSpace(cell.Text())
			}
		})
		items = append(items, item)
	})

	return items
}

// parseNodeCell reads the name cell of a tree row: its text, listing link and help title
func parseNodeCell(cell *goquery.Selection) (name, href, description string) {
	name = strings.TrimSpace(strings.Replace(cell.Text(), "[?]", "", 1))

	links := cell.Find("a")
	if links.Length() > 0 {
		href, _ = links.Eq(0).Attr("href")
	}
	if links.Length() > 1 {
		description, _ = links.Eq(1).Attr("title")
	}
	return name, href, description
}

// idSuffix returns the part of the row id after the first underscore (e.g. niv1_12 -> 12)
func idSuffix(row *goquery.Selection) string {
	id, _ := row.Attr("id")
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return id
	}
	return parts[1]
}

// subParam extracts the rubro id from the sub= parameter of its listing URL
func subParam(href string) string {
	_, rest, found := strings.Cut(href, "&sub=")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(rest, "&")
	return id
}

// ParseOverview reads the result count summary of a leaf listing
func (p *Parser) ParseOverview(html string) (*domain.ResultsOverview, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}

	summary := doc.Find("#detailgral > div:nth-child(2)")
	if summary.Length() == 0 {
		return nil, errors.New("results summary #detailgral not found")
	}

	text := strings.TrimSpace(bracketHint.ReplaceAllString(summary.First().Text(), ""))
	tokens := strings.Fields(text)
	if len(tokens) < 4 {
		return nil, fmt.Errorf("unexpected results summary %q", text)
	}

	total, err := domain.ParseAmount(tokens[0])
	if err != nil {
		return nil, fmt.Errorf("invalid result total: %w", err)
	}
	pages, err := domain.ParseAmount(tokens[3])
	if err != nil {
		return nil, fmt.Errorf("invalid page count: %w", err)
	}

	return &domain.ResultsOverview{
		Total: int(total.IntPart()),
		Pages: int(pages.IntPart()),
	}, nil
}

type listingResponse struct {
	Rows []domain.ListingRow `json:"rows"`
}

// ParseListing decodes the JSON body of an AJAX listing page
func (p *Parser) ParseListing(body []byte) ([]domain.ListingRow, error) {
	var resp listingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode listing page: %w", err)
	}
	return resp.Rows, nil
}

// ExtractStubs picks the contract rows out of a listing page. Rows without
// a contract container (headers, spacers) are ignored.
func (p *Parser) ExtractStubs(rows []domain.ListingRow) ([]domain.RecordStub, error) {
	stubs := make([]domain.RecordStub, 0, len(rows))

	for i, row := range rows {
		doc, err := newDocument(row.Template)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if doc.Find(".dcontainer1, .dcontainer2").Length() == 0 {
			continue
		}

		href, ok := doc.Find("a").First().Attr("href")
		if !ok || href == "" {
			log.Warnf("⚠️ Listing row %d has no contract link", i)
			continue
		}
		href, _, _ = strings.Cut(href, "&ref=")

		id := contractID(href)
		if id == "" {
			log.Warnf("⚠️ Listing row %d links to %s which is not a contract", i, href)
			continue
		}

		stubs = append(stubs, domain.RecordStub{
			ID:  id,
			URL: p.absolute(href),
		})
	}

	return stubs, nil
}

// contractID reads the f= parameter of a contract link
func contractID(href string) domain.RecordID {
	if u, err := url.Parse(href); err == nil {
		if id := u.Query().Get("f"); id != "" {
			return domain.RecordID(id)
		}
	}
	if strings.HasPrefix(href, domain.ContractPathPrefix) {
		return domain.RecordID(strings.TrimPrefix(href, domain.ContractPathPrefix))
	}
	return ""
}
