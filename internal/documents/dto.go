package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID    string    `json:"documentId"`
	RemoteID      string    `json:"remoteId,omitempty"`
	BatchID       string    `json:"batchId,omitempty"`
	FileName      string    `json:"fileName"`
	CNPJ          string    `json:"cnpj"`
	Source        string    `json:"source,omitempty"`
	Description   string    `json:"description,omitempty"`
	MimeType      string    `json:"mimeType,omitempty"`
	SizeBytes     int64     `json:"sizeBytes"`
	PageCount     int       `json:"pageCount,omitempty"`
	Status        string    `json:"status"`
	IsProcessed   bool      `json:"isProcessed"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	DocumentID    string `json:"documentId"`
	RemoteID      string `json:"remoteId,omitempty"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

type batchItemRequest struct {
	FileName      string `json:"fileName"`
	ContentBase64 string `json:"contentBase64"`
	CNPJ          string `json:"cnpj"`
	Source        string `json:"source"`
	Description   string `json:"description"`
}

// ToResponse maps a Document to its JSON shape.
func ToResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		DocumentID:    doc.ID,
		RemoteID:      doc.RemoteID,
		BatchID:       doc.BatchID,
		FileName:      doc.FileName,
		CNPJ:          doc.CNPJ,
		Source:        doc.Source,
		Description:   doc.Description,
		MimeType:      doc.MimeType,
		SizeBytes:     doc.SizeBytes,
		PageCount:     doc.PageCount,
		Status:        string(doc.Status),
		IsProcessed:   doc.Status.IsTerminal(),
		ErrorMessage:  doc.ErrorMessage,
		FailureReason: doc.FailureReason,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func toStatusResponse(doc Document) StatusResponse {
	return StatusResponse{
		DocumentID:    doc.ID,
		RemoteID:      doc.RemoteID,
		Status:        string(doc.Status),
		ErrorMessage:  doc.ErrorMessage,
		FailureReason: doc.FailureReason,
	}
}
