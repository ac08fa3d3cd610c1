package client

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"imss/harvester/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const detailBox = "#divcontenidos > div:nth-child(2) > div:nth-child(1) > div:nth-child(1) > div:nth-child(3)"

var (
	datesSelector      = detailBox + " > table:nth-child(2) > tbody:nth-child(1) > tr:nth-child(2) > td:nth-child(1) > div:nth-child(1) > span:nth-child(1)"
	productKeySelector = detailBox + " > table:nth-child(4) > tbody:nth-child(1) > tr:nth-child(1) > td:nth-child(1) > strong:nth-child(1)"
	documentsSelector  = detailBox + " > div > div"

	dateSeparator   = regexp.MustCompile(`-|,`)
	numberSeparator = regexp.MustCompile(`:|-`)
	trailingHint    = regexp.MustCompile(`\[.*\]\s*$`)
)

const multiYearLabel = "Contrato multianual"

// detailField stores the value of one labelled span of a contract page
type detailField struct {
	name string
	set  func(r *domain.Record, value string) error
}

func textField(set func(r *domain.Record, v string)) func(*domain.Record, string) error {
	return func(r *domain.Record, v string) error {
		set(r, v)
		return nil
	}
}

func dateField(set func(r *domain.Record, v string)) func(*domain.Record, string) error {
	return func(r *domain.Record, v string) error {
		set(r, convertDate(v))
		return nil
	}
}

func amountField(set func(r *domain.Record, d *decimal.Decimal)) func(*domain.Record, string) error {
	return func(r *domain.Record, v string) error {
		d, err := domain.ParseAmount(v)
		if err != nil {
			return err
		}
		set(r, &d)
		return nil
	}
}

var (
	numFactura       = detailField{"num_factura", textField(func(r *domain.Record, v string) { r.InvoiceNumber = v })}
	numPedido        = detailField{"num_pedido", textField(func(r *domain.Record, v string) { r.OrderNumber = v })}
	numOrdenCompra   = detailField{"num_orden_compra", textField(func(r *domain.Record, v string) { r.PurchaseOrder = v })}
	ambitoLicitacion = detailField{"ambito_licitacion", textField(func(r *domain.Record, v string) { r.TenderScope = v })}
	cantidadRecibida = detailField{"cantidad_recibida", amountField(func(r *domain.Record, d *decimal.Decimal) { r.QuantityReceived = d })}
	cantidadSolicit  = detailField{"cantidad_solicitada", amountField(func(r *domain.Record, d *decimal.Decimal) { r.QuantityRequested = d })}
	descripcion      = detailField{"descripcion", textField(func(r *domain.Record, v string) { r.Description = v })}
	delegacion       = detailField{"delegacion", textField(func(r *domain.Record, v string) { r.Delegation = v })}
	descuento        = detailField{"descuento", textField(func(r *domain.Record, v string) { r.Discount = v })}
	estado           = detailField{"estado", textField(func(r *domain.Record, v string) { r.State = v })}
	estatusContrato  = detailField{"estatus_contrato", textField(func(r *domain.Record, v string) { r.ContractStatus = v })}
	fechaEntrega     = detailField{"fecha_entrega", dateField(func(r *domain.Record, v string) { r.DeliveryDate = v })}
	fechaExpedicion  = detailField{"fecha_expedicion", dateField(func(r *domain.Record, v string) { r.IssueDate = v })}
	fechaFactura     = detailField{"fecha_factura", dateField(func(r *domain.Record, v string) { r.InvoiceDate = v })}
	fechaInicio      = detailField{"fecha_inicio", dateField(func(r *domain.Record, v string) { r.StartDate = v })}
	fechaFin         = detailField{"fecha_fin", dateField(func(r *domain.Record, v string) { r.EndDate = v })}
	iva              = detailField{"iva", amountField(func(r *domain.Record, d *decimal.Decimal) { r.VAT = d })}
	localidad        = detailField{"localidad", textField(func(r *domain.Record, v string) { r.Locality = v })}
	numProcedimiento = detailField{"num_procedimiento", textField(func(r *domain.Record, v string) { r.ProcedureNumber = v })}
	numContrato      = detailField{"num_contrato", textField(func(r *domain.Record, v string) { r.ContractNumber = v })}
	precio           = detailField{"precio", amountField(func(r *domain.Record, d *decimal.Decimal) { r.Price = d })}
	precioTotal      = detailField{"precio_total", amountField(func(r *domain.Record, d *decimal.Decimal) { r.TotalPrice = d })}
	procedimiento    = detailField{"procedimiento", textField(func(r *domain.Record, v string) { r.Procedure = v })}
	tipoContrato     = detailField{"tipo_contrato", textField(func(r *domain.Record, v string) { r.ContractType = v })}
	producto         = detailField{"producto", textField(func(r *domain.Record, v string) { r.Product = v })}
	proveedorDetalle = detailField{"proveedor_detalle", textField(func(r *domain.Record, v string) { r.SupplierDetail = v })}
	subprocedimiento = detailField{"subprocedimiento", textField(func(r *domain.Record, v string) { r.Subprocedure = v })}
	unidad           = detailField{"unidad", textField(func(r *domain.Record, v string) { r.Unit = v })}
	unidadCompradora = detailField{"unidad_compradora", textField(func(r *domain.Record, v string) { r.BuyingUnit = v })}
	unidadEntrega    = detailField{"unidad_entrega", textField(func(r *domain.Record, v string) { r.DeliveryUnit = v })}
	rfc              = detailField{"rfc", textField(func(r *domain.Record, v string) { r.RFC = stripHint(v) })}
)

// detailLabels maps the labels of the span.txtdesccaja boxes to record fields
var detailLabels = map[string]detailField{
	"# Factura":                    numFactura,
	"# Pedido":                     numPedido,
	"# Orden d compra":             numOrdenCompra,
	"Ambito de licitación":         ambitoLicitacion,
	"Cantidad":                     cantidadRecibida,
	"Cantidad recibida":            cantidadRecibida,
	"Cantidad solicitada":          cantidadSolicit,
	"Descripción":                  descripcion,
	"Delegación del IMSS":          delegacion,
	"Descuento":                    descuento,
	"Estado":                       estado,
	"Estado de la República":       estado,
	"Estatus":                      estatusContrato,
	"Estatus del contrato":         estatusContrato,
	"Fecha de entrega":             fechaEntrega,
	"Fecha de expedición":          fechaExpedicion,
	"Fecha factura":                fechaFactura,
	"Fecha de inicio del contrato": fechaInicio,
	"Fecha de inicio de contrato":  fechaInicio,
	"Fecha de fin del contrato":    fechaFin,
	"Fecha de fin de contrato":     fechaFin,
	"IVA":                          iva,
	"Localidad":                    localidad,
	"No. Procedimiento":            numProcedimiento,
	"Procedimiento":                numProcedimiento,
	"# Contrato":                   numContrato,
	"Número de contrato":           numContrato,
	"Precio":                       precio,
	"Precio total":                 precioTotal,
	"Procedimiento de compra":      procedimiento,
	"Tipo de adquisición":          procedimiento,
	"Tipo de contrato":             tipoContrato,
	"Producto":                     producto,
	"Proveedor":                    proveedorDetalle,
	"RFC":                          rfc,
	"Subprocedimiento de compra":   subprocedimiento,
	"Unidad":                       unidad,
	"Unidad compradora":            unidadCompradora,
	"Unidad de entrega":            unidadEntrega,
}

// ExtractRecord parses a contract detail page into a record built from stub
func (p *Parser) ExtractRecord(stub domain.RecordStub, html string) (*domain.Record, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}

	content := doc.Find("#divcontenidos")
	if content.Length() == 0 {
		return nil, errors.New("contract page has no #divcontenidos")
	}

	purchase := content.Find(".txtcajacompra").Map(func(i int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})
	if len(purchase) == 0 {
		return nil, errors.New("contract page has no purchase summary")
	}

	record := domain.NewRecord(stub)
	record.URL = p.absolute(stub.URL)

	if dates := doc.Find(datesSelector); dates.Length() > 0 {
		record.StartDate, record.EndDate = parseDateRange(dates.First().Text())
	}

	record.Concept = purchase[0]
	if len(purchase) > 2 {
		if parts := numberSeparator.Split(purchase[1], -1); len(parts) > 1 {
			record.WorkNumber = strings.TrimSpace(parts[1])
		}
	}
	if d, err := domain.ParseAmount(purchase[len(purchase)-1]); err == nil {
		record.Amount = &d
	} else {
		log.Warnf("⚠️ Contract %s: %v", stub.ID, err)
	}

	if key := doc.Find(productKeySelector); key.Length() > 0 {
		record.ProductKey = strings.TrimSpace(key.First().Text())
	}
	if docs := doc.Find(documentsSelector); docs.Length() > 0 {
		record.Documents = trailingHTML(docs.First().Parent())
	}

	content.Find("span.txtdesccaja").Each(func(i int, s *goquery.Selection) {
		applyLabel(record, strings.TrimSpace(s.Text()))
	})

	return record, nil
}

// applyLabel stores one "Label: value" box. Unknown labels are logged and
// kept in Extra.
func applyLabel(record *domain.Record, box string) {
	if box == multiYearLabel {
		record.MultiYear = true
		return
	}

	label, value, found := strings.Cut(box, ":")
	if !found || label == "" {
		return
	}
	value = strings.TrimSpace(value)

	field, ok := detailLabels[label]
	if !ok {
		log.Debugf("Unknown field found on contract %s: %q", record.ID, label)
		if record.Extra == nil {
			record.Extra = make(map[string]string)
		}
		record.Extra[label] = value
		return
	}

	if err := field.set(record, value); err != nil {
		log.Warnf("⚠️ Contract %s: invalid %s %q: %v", record.ID, field.name, value, err)
	}
}

func stripHint(v string) string {
	return strings.TrimSpace(trailingHint.ReplaceAllString(v, ""))
}

// parseDateRange reads "Inicio: dd/mm/yyyy - Fin: dd/mm/yyyy"
func parseDateRange(raw string) (start, end string) {
	parts := dateSeparator.Split(strings.TrimSpace(raw), -1)
	valueOf := func(s string) string {
		if _, after, found := strings.Cut(s, ":"); found {
			s = after
		}
		return convertDate(strings.TrimSpace(s))
	}

	if len(parts) > 0 {
		start = valueOf(parts[0])
	}
	if len(parts) > 1 {
		end = valueOf(parts[1])
	}
	return start, end
}

// convertDate turns dd/mm/yyyy into yyyy-mm-dd and leaves anything else alone
func convertDate(s string) string {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return s
	}
	return fmt.Sprintf("%s-%s-%s", parts[2], parts[1], parts[0])
}

// trailingHTML returns what follows the last closing div inside the box
func trailingHTML(box *goquery.Selection) string {
	html, err := box.Html()
	if err != nil {
		return ""
	}
	pieces := strings.Split(html, "</div>")
	return strings.TrimSpace(pieces[len(pieces)-1])
}
