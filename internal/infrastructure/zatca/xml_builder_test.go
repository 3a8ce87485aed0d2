package zatca

import (
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/zatca"
)

func sampleInvoice() *domzatca.SimplifiedInvoice {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return &domzatca.SimplifiedInvoice{
		Reference:    "POS/002",
		UUID:         "11111111-1111-1111-1111-111111111111",
		IssueDate:    time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		CurrencyCode: "SAR",
		TypeCode:     388,
		Counter:      7,
		PreviousHash: "cHJldi1oYXNo",
		CustomerName: "عميل نقدي",
		Supplier: domzatca.SupplierProfile{
			Name:        "ACME",
			VAT:         "300123456700003",
			City:        "Riyadh",
			CountryCode: "SA",
		},
		Lines: []domzatca.InvoiceLine{
			{Number: 1, ProductName: "Dates box", Quantity: d("2"), UnitPrice: d("10"), BaseQuantity: d("1"), TaxRate: d("15"), Net: d("20.00"), Tax: d("3.00")},
			{Number: 2, ProductName: "Water", Quantity: d("1"), UnitPrice: d("5"), BaseQuantity: d("1"), TaxRate: d("0"), Net: d("5.00"), Tax: d("0.00")},
		},
		TotalWithoutTax: d("25.00"),
		TotalTax:        d("3.00"),
		TotalWithTax:    d("28.00"),
	}
}

func sampleCreditNote() *domzatca.SimplifiedInvoice {
	inv := sampleInvoice()
	inv.Reference = "POS/010"
	inv.TypeCode = 381
	inv.BillingReference = &domzatca.BillingReference{
		ID:        "POS/001",
		IssueDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	inv.RefundReason = &domzatca.RefundReason{Code: "CUSTOMER_REQUEST", Label: "Customer Cancellation - إلغاء بطلب العميل"}
	return inv
}

func buildAndParse(t *testing.T, inv *domzatca.SimplifiedInvoice) *etree.Element {
	t.Helper()
	out, err := NewXMLBuilderService().Build(&InvoiceBuildContext{Invoice: inv})
	require.NoError(t, err)
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))
	root := doc.Root()
	require.NotNil(t, root)
	return root
}

func childText(t *testing.T, parent *etree.Element, tag string) string {
	t.Helper()
	el := findChildByTag(parent, tag)
	require.NotNil(t, el, "element %s not found under %s", tag, parent.Tag)
	return strings.TrimSpace(el.Text())
}

// ── standard invoice ──────────────────────────────────────────────────────────

func TestBuild_StandardInvoiceStructure(t *testing.T) {
	root := buildAndParse(t, sampleInvoice())

	assert.Equal(t, "Invoice", localTag(root))

	// the signer relies on UBLExtensions being the first child
	children := root.ChildElements()
	require.NotEmpty(t, children)
	assert.Equal(t, "UBLExtensions", localTag(children[0]))

	assert.Equal(t, "POS/002", childText(t, root, "ID"))
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", childText(t, root, "UUID"))
	assert.Equal(t, "2025-01-01", childText(t, root, "IssueDate"))

	typeCode := findChildByTag(root, "InvoiceTypeCode")
	require.NotNil(t, typeCode)
	assert.Equal(t, "388", strings.TrimSpace(typeCode.Text()))
	assert.Equal(t, "0211010", typeCode.SelectAttrValue("name", ""))

	assert.Nil(t, findChildByTag(root, "BillingReference"))
	assert.Nil(t, findChildByTag(root, "Note"))
}

func TestBuild_ChainAndQRReferences(t *testing.T) {
	root := buildAndParse(t, sampleInvoice())

	refs := map[string]string{}
	for _, ref := range root.ChildElements() {
		if localTag(ref) != "AdditionalDocumentReference" {
			continue
		}
		id := childText(t, ref, "ID")
		switch id {
		case ICVNodeID:
			refs[id] = childText(t, ref, "UUID")
		default:
			att := findChildByTag(ref, "Attachment")
			require.NotNil(t, att, "reference %s has no attachment", id)
			refs[id] = childText(t, att, "EmbeddedDocumentBinaryObject")
		}
	}

	assert.Equal(t, "7", refs[ICVNodeID])
	assert.Equal(t, "cHJldi1oYXNo", refs[PIHNodeID])
	assert.Equal(t, QRPlaceholder, refs[QRNodeID])
}

func TestBuild_MonetaryTotalsAndLines(t *testing.T) {
	root := buildAndParse(t, sampleInvoice())

	total := findChildByTag(root, "LegalMonetaryTotal")
	require.NotNil(t, total)
	assert.Equal(t, "25.00", childText(t, total, "TaxExclusiveAmount"))
	assert.Equal(t, "28.00", childText(t, total, "TaxInclusiveAmount"))
	assert.Equal(t, "28.00", childText(t, total, "PayableAmount"))

	var lines []*etree.Element
	for _, el := range root.ChildElements() {
		if localTag(el) == "InvoiceLine" {
			lines = append(lines, el)
		}
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "1", childText(t, lines[0], "ID"))
	assert.Equal(t, "20.00", childText(t, lines[0], "LineExtensionAmount"))

	// the zero-rated line carries category Z
	item := findChildByTag(lines[1], "Item")
	require.NotNil(t, item)
	cat := findChildByTag(item, "ClassifiedTaxCategory")
	require.NotNil(t, cat)
	assert.Equal(t, "Z", childText(t, cat, "ID"))
}

// ── credit note ───────────────────────────────────────────────────────────────

func TestBuild_CreditNoteStructure(t *testing.T) {
	root := buildAndParse(t, sampleCreditNote())

	typeCode := findChildByTag(root, "InvoiceTypeCode")
	require.NotNil(t, typeCode)
	assert.Equal(t, "381", strings.TrimSpace(typeCode.Text()))

	billing := findChildByTag(root, "BillingReference")
	require.NotNil(t, billing)
	docRef := findChildByTag(billing, "InvoiceDocumentReference")
	require.NotNil(t, docRef)
	assert.Equal(t, "POS/001", childText(t, docRef, "ID"))
	assert.Equal(t, "2024-01-01", childText(t, docRef, "IssueDate"))

	// refund reason rides as a document note
	note := findChildByTag(root, "Note")
	require.NotNil(t, note)
	assert.Contains(t, note.Text(), "Customer Cancellation")
}

func TestBuild_ErrorCases(t *testing.T) {
	svc := NewXMLBuilderService()

	_, err := svc.Build(nil)
	assert.Error(t, err)

	_, err = svc.Build(&InvoiceBuildContext{})
	assert.Error(t, err)

	inv := sampleInvoice()
	inv.Lines = nil
	_, err = svc.Build(&InvoiceBuildContext{Invoice: inv})
	assert.Error(t, err)

	inv = sampleInvoice()
	inv.Supplier.VAT = ""
	_, err = svc.Build(&InvoiceBuildContext{Invoice: inv})
	assert.Error(t, err)
}

// ── post-generation surgery ───────────────────────────────────────────────────

func TestEmbedQR_ReplacesPlaceholder(t *testing.T) {
	out, err := NewXMLBuilderService().Build(&InvoiceBuildContext{Invoice: sampleInvoice()})
	require.NoError(t, err)
	require.Contains(t, string(out), QRPlaceholder)

	embedded, err := EmbedQR(out, "AQRBQ01F")
	require.NoError(t, err)
	assert.NotContains(t, string(embedded), QRPlaceholder)
	assert.Contains(t, string(embedded), "AQRBQ01F")
}

func TestEmbedQR_MissingNode(t *testing.T) {
	_, err := EmbedQR([]byte("<Invoice/>"), "AQRBQ01F")
	assert.Error(t, err)
}

func TestSigningArtifacts_ExtractsDigestAndSignature(t *testing.T) {
	signed := `<Invoice>
	  <ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#">
	    <ds:SignedInfo>
	      <ds:Reference Id="invoiceSignedData" URI="">
	        <ds:DigestValue>ZG9jLWRpZ2VzdA==</ds:DigestValue>
	      </ds:Reference>
	    </ds:SignedInfo>
	    <ds:SignatureValue>c2lnLXZhbHVl</ds:SignatureValue>
	  </ds:Signature>
	</Invoice>`

	digest, sig, err := SigningArtifacts([]byte(signed))
	require.NoError(t, err)
	assert.Equal(t, "ZG9jLWRpZ2VzdA==", digest)
	assert.Equal(t, "c2lnLXZhbHVl", sig)
}

func TestSigningArtifacts_MissingDigestNode(t *testing.T) {
	_, _, err := SigningArtifacts([]byte("<Invoice/>"))
	assert.Error(t, err)
}
