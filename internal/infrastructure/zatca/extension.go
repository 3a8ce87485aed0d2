// XML document surgery after generation: replacing the placeholder
// UBLExtensions with the mandated signature extension, embedding the QR
// payload and reading back the values the pipeline needs from a signed
// document.

package zatca

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// replaceSignatureExtension swaps the empty placeholder UBLExtensions emitted
// by the builder for the authority-mandated extension carrying sigXML (the
// full ds:Signature block inside the UBL signature container). The rest of
// the document is preserved byte for byte by etree.
func replaceSignatureExtension(xmlBytes []byte, sigXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("zatca: parse invoice XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("zatca: invoice XML has no root")
	}

	ublExt := findChildByTag(root, "UBLExtensions")
	if ublExt == nil {
		return nil, fmt.Errorf("zatca: UBLExtensions placeholder not found")
	}
	nsExt := ublExt.Space

	// drop the placeholder children, then build the mandated layout:
	// UBLExtension > ExtensionURI + ExtensionContent > sig:UBLDocumentSignatures > ... > ds:Signature
	for _, child := range ublExt.ChildElements() {
		ublExt.RemoveChild(child)
	}

	ext := ublExt.CreateElement("UBLExtension")
	ext.Space = nsExt
	uri := ext.CreateElement("ExtensionURI")
	uri.Space = nsExt
	uri.SetText("urn:oasis:names:specification:ubl:dsig:enveloped:xades")
	content := ext.CreateElement("ExtensionContent")
	content.Space = nsExt

	docSigs := content.CreateElement("sig:UBLDocumentSignatures")
	docSigs.CreateAttr("xmlns:sig", NsSig)
	sigInfo := docSigs.CreateElement("sac:SignatureInformation")
	sigInfo.CreateAttr("xmlns:sac", NsSig+":SignatureAggregateComponents")
	id := sigInfo.CreateElement("cbc:ID")
	id.SetText("urn:oasis:names:specification:ubl:signature:1")

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(sigXML); err != nil {
		return nil, fmt.Errorf("zatca: parse signature block: %w", err)
	}
	if sigRoot := sigDoc.Root(); sigRoot != nil {
		sigInfo.AddChild(sigRoot)
	}

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// EmbedQR replaces the QR placeholder value with the base64 TLV payload.
func EmbedQR(xmlBytes []byte, qrB64 string) ([]byte, error) {
	return setDocumentReferenceValue(xmlBytes, QRNodeID, qrB64)
}

// setDocumentReferenceValue rewrites the EmbeddedDocumentBinaryObject text of
// the AdditionalDocumentReference identified by refID.
func setDocumentReferenceValue(xmlBytes []byte, refID, value string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("zatca: parse invoice XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("zatca: invoice XML has no root")
	}

	for _, ref := range root.ChildElements() {
		if localTag(ref) != "AdditionalDocumentReference" {
			continue
		}
		id := findChildByTag(ref, "ID")
		if id == nil || strings.TrimSpace(id.Text()) != refID {
			continue
		}
		att := findChildByTag(ref, "Attachment")
		if att == nil {
			return nil, fmt.Errorf("zatca: reference %s has no Attachment", refID)
		}
		obj := findChildByTag(att, "EmbeddedDocumentBinaryObject")
		if obj == nil {
			return nil, fmt.Errorf("zatca: reference %s has no EmbeddedDocumentBinaryObject", refID)
		}
		obj.SetText(value)

		var out bytes.Buffer
		if _, err := doc.WriteTo(&out); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}
	return nil, fmt.Errorf("zatca: AdditionalDocumentReference %s not found", refID)
}

// SigningArtifacts reads the document digest and signature value out of a
// signed invoice. The DigestValue of the reference whose Id is
// "invoiceSignedData" is the authoritative document hash (the next chain
// link); the SignatureValue feeds QR tag 9.
func SigningArtifacts(signedXML []byte) (digestB64, signatureB64 string, err error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return "", "", fmt.Errorf("zatca: parse signed XML: %w", err)
	}

	ref := firstMatching(doc, func(e *etree.Element) bool {
		return localTag(e) == "Reference" && e.SelectAttrValue("Id", "") == DocDigestReferenceID
	})
	if ref != nil {
		if dv := findChildByTag(ref, "DigestValue"); dv != nil {
			digestB64 = strings.TrimSpace(dv.Text())
		}
	}
	if digestB64 == "" {
		return "", "", fmt.Errorf("zatca: digest node %s not found in signed XML", DocDigestReferenceID)
	}

	if sv := firstByLocalTag(doc, "SignatureValue"); sv != nil {
		signatureB64 = strings.TrimSpace(sv.Text())
	}
	return digestB64, signatureB64, nil
}

// ── etree helpers ─────────────────────────────────────────────────────────────

// localTag strips a serialized prefix ("cac:ID" or Space-carrying "ID").
func localTag(e *etree.Element) string {
	if i := strings.Index(e.Tag, ":"); i >= 0 {
		return e.Tag[i+1:]
	}
	return e.Tag
}

func findChildByTag(parent *etree.Element, tag string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if localTag(child) == tag {
			return child
		}
	}
	return nil
}

func firstByLocalTag(doc *etree.Document, tag string) *etree.Element {
	return firstMatching(doc, func(e *etree.Element) bool { return localTag(e) == tag })
}

func firstMatching(doc *etree.Document, pred func(*etree.Element) bool) *etree.Element {
	var found *etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if found != nil {
			return
		}
		if pred(e) {
			found = e
			return
		}
		for _, c := range e.ChildElements() {
			walk(c)
		}
	}
	if root := doc.Root(); root != nil {
		walk(root)
	}
	return found
}
