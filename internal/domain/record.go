package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RecordID is the portal's opaque contract identifier (ficha)
type RecordID string

// UnmarshalJSON accepts both strings and bare numbers, older logs stored ids as numbers
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id is neither string nor number: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

func (id RecordID) String() string {
	return string(id)
}

// ContractPathPrefix is the portal path of a contract detail page, followed by its id
const ContractPathPrefix = "/?P=imsscomprofich&f="

// Path returns the detail page path of the contract
func (id RecordID) Path() string {
	return ContractPathPrefix + string(id)
}

// RecordStub is a contract as seen on a listing page, tagged with its tree path
type RecordStub struct {
	ID              RecordID `json:"id_ficha"`
	URL             string   `json:"url"`
	Period          string   `json:"periodo,omitempty"`
	CategoryID      string   `json:"categoria"`
	CategoryName    string   `json:"categoria_nombre,omitempty"`
	SubcategoryID   string   `json:"subcategoria"`
	SubcategoryName string   `json:"subcategoria_nombre,omitempty"`
	SubItemID       string   `json:"rubro,omitempty"`
	SubItemName     string   `json:"rubro_nombre,omitempty"`
}

// Path returns the tree path the stub was listed under
func (s RecordStub) Path() TreePath {
	return NewTreePath(s.CategoryID, s.SubcategoryID, s.SubItemID)
}

// Record is a fully fetched contract. It is never modified once written.
type Record struct {
	RecordStub

	StartDate    string `json:"fecha_inicio,omitempty"`
	EndDate      string `json:"fecha_fin,omitempty"`
	DeliveryDate string `json:"fecha_entrega,omitempty"`
	IssueDate    string `json:"fecha_expedicion,omitempty"`
	InvoiceDate  string `json:"fecha_factura,omitempty"`

	Concept     string `json:"concepto,omitempty"`
	WorkNumber  string `json:"numero_obra,omitempty"`
	ProductKey  string `json:"clave_producto,omitempty"`
	Documents   string `json:"documentos,omitempty"`
	Description string `json:"descripcion,omitempty"`
	Product     string `json:"producto,omitempty"`

	Amount            *decimal.Decimal `json:"monto,omitempty"`
	VAT               *decimal.Decimal `json:"iva,omitempty"`
	Price             *decimal.Decimal `json:"precio,omitempty"`
	TotalPrice        *decimal.Decimal `json:"precio_total,omitempty"`
	QuantityReceived  *decimal.Decimal `json:"cantidad_recibida,omitempty"`
	QuantityRequested *decimal.Decimal `json:"cantidad_solicitada,omitempty"`
	Discount          string           `json:"descuento,omitempty"`

	InvoiceNumber   string `json:"num_factura,omitempty"`
	OrderNumber     string `json:"num_pedido,omitempty"`
	PurchaseOrder   string `json:"num_orden_compra,omitempty"`
	ContractNumber  string `json:"num_contrato,omitempty"`
	ProcedureNumber string `json:"num_procedimiento,omitempty"`
	Procedure       string `json:"procedimiento,omitempty"`
	Subprocedure    string `json:"subprocedimiento,omitempty"`
	TenderScope     string `json:"ambito_licitacion,omitempty"`
	ContractType    string `json:"tipo_contrato,omitempty"`
	ContractStatus  string `json:"estatus_contrato,omitempty"`
	MultiYear       bool   `json:"multianual,omitempty"`

	SupplierDetail string `json:"proveedor_detalle,omitempty"`
	RFC            string `json:"rfc,omitempty"`

	Delegation   string `json:"delegacion,omitempty"`
	State        string `json:"estado,omitempty"`
	Locality     string `json:"localidad,omitempty"`
	Unit         string `json:"unidad,omitempty"`
	BuyingUnit   string `json:"unidad_compradora,omitempty"`
	DeliveryUnit string `json:"unidad_entrega,omitempty"`

	// Labels found on the detail page that have no mapped field
	Extra map[string]string `json:"extra,omitempty"`
}

// NewRecord starts a record from its stub
func NewRecord(stub RecordStub) *Record {
	return &Record{RecordStub: stub}
}
