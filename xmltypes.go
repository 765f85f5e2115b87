package alarik

import (
	"encoding/xml"
	"strings"
	"time"
)

const xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"

// UserInfo is the <Owner> element every listing response embeds.
type UserInfo struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

var defaultOwner = &UserInfo{ID: "alarik", DisplayName: "alarik"}

// BucketInfo is one entry in the ListBuckets response.
type BucketInfo struct {
	Name         string    `xml:"Name"`
	CreationDate ISOTime   `xml:"CreationDate"`
}

// Buckets wraps the <Bucket> entries of a ListBuckets response.
type Buckets struct {
	Bucket []BucketInfo `xml:"Bucket"`
}

// Storage is the root element of a ListBuckets (GET /) response.
type Storage struct {
	XMLName xml.Name  `xml:"ListAllMyBucketsResult"`
	Xmlns   string    `xml:"xmlns,attr"`
	Owner   *UserInfo `xml:"Owner"`
	Buckets Buckets   `xml:"Buckets"`
}

// ISOTime wraps time.Time to marshal using the millisecond-precision ISO
// 8601 form S3 uses in CreationDate/LastModified elements.
type ISOTime struct {
	time.Time
}

func NewISOTime(t time.Time) ISOTime { return ISOTime{t} }

func (t ISOTime) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(t.Time.UTC().Format("2006-01-02T15:04:05.000Z"), start)
}

func (t *ISOTime) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	parsed, err := time.Parse("2006-01-02T15:04:05.000Z", s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	t.Time = parsed
	return nil
}

// CommonPrefix is one entry in a listing's <CommonPrefixes> set.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// Content is one object entry in a ListBucket(V1/V2) response.
type Content struct {
	Key          string   `xml:"Key"`
	LastModified ISOTime  `xml:"LastModified"`
	ETag         string   `xml:"ETag"`
	Size         int64    `xml:"Size"`
	StorageClass string   `xml:"StorageClass"`
	Owner        *UserInfo `xml:"Owner,omitempty"`
}

// ListBucketResultBase carries the fields common to both the V1 and V2
// ListBucket response shapes.
type ListBucketResultBase struct {
	XMLName        xml.Name       `xml:"ListBucketResult"`
	Xmlns          string         `xml:"xmlns,attr"`
	Name           string         `xml:"Name"`
	Prefix         string         `xml:"Prefix"`
	Delimiter      string         `xml:"Delimiter,omitempty"`
	MaxKeys        int64          `xml:"MaxKeys"`
	IsTruncated    bool           `xml:"IsTruncated"`
	Contents       []Content      `xml:"Contents"`
	CommonPrefixes []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ListBucketResult is the List Objects V1 response shape.
type ListBucketResult struct {
	ListBucketResultBase
	Marker     string `xml:"Marker"`
	NextMarker string `xml:"NextMarker,omitempty"`
}

// ListBucketResultV2 is the List Objects V2 response shape.
type ListBucketResultV2 struct {
	ListBucketResultBase
	KeyCount              int64  `xml:"KeyCount"`
	StartAfter            string `xml:"StartAfter,omitempty"`
	ContinuationToken     string `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string `xml:"NextContinuationToken,omitempty"`
}

// GetBucketLocation is the response to GET ?location. alarik is a
// single-node, single-region service, so LocationConstraint is always
// empty (us-east-1).
type GetBucketLocation struct {
	XMLName            xml.Name `xml:"LocationConstraint"`
	Xmlns               string   `xml:"xmlns,attr"`
	LocationConstraint string   `xml:",chardata"`
}

// MFADeleteStatus is the <MfaDelete> element of a VersioningConfiguration.
type MFADeleteStatus string

const (
	MFADeleteEnabled  MFADeleteStatus = "Enabled"
	MFADeleteDisabled MFADeleteStatus = "Disabled"
)

// VersioningConfiguration is the GET/PUT ?versioning request/response body.
type VersioningConfiguration struct {
	XMLName   xml.Name         `xml:"VersioningConfiguration"`
	Xmlns     string           `xml:"xmlns,attr,omitempty"`
	Status    VersioningStatus `xml:"Status,omitempty"`
	MFADelete MFADeleteStatus  `xml:"MfaDelete,omitempty"`
}

// UnmarshalXML accepts "enabled"/"suspended"/"disabled" case-insensitively,
// following the wire jank real S3 clients are tolerant of.
func (s *VersioningStatus) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var v string
	if err := d.DecodeElement(&v, &start); err != nil {
		return err
	}
	switch strings.ToLower(v) {
	case "enabled":
		*s = VersioningEnabled
	case "suspended":
		*s = VersioningSuspended
	case "", "disabled":
		*s = VersioningDisabled
	default:
		*s = VersioningStatus(v)
	}
	return nil
}

// VersionItem is implemented by Version and DeleteMarker, letting the
// gateway uniformly stamp the "null" version-id jank across both.
type VersionItem interface {
	GetVersionID() string
	setVersionID(string)
}

// Version is one non-delete-marker entry in a ListBucketVersions response.
type Version struct {
	XMLName      xml.Name  `xml:"Version"`
	Key          string    `xml:"Key"`
	VersionID    string    `xml:"VersionId"`
	IsLatest     bool      `xml:"IsLatest"`
	LastModified ISOTime   `xml:"LastModified"`
	ETag         string    `xml:"ETag"`
	Size         int64     `xml:"Size"`
	StorageClass string    `xml:"StorageClass"`
	Owner        *UserInfo `xml:"Owner,omitempty"`
}

func (v *Version) GetVersionID() string  { return v.VersionID }
func (v *Version) setVersionID(id string) { v.VersionID = id }

// DeleteMarker is one delete-marker entry in a ListBucketVersions response.
type DeleteMarker struct {
	XMLName      xml.Name  `xml:"DeleteMarker"`
	Key          string    `xml:"Key"`
	VersionID    string    `xml:"VersionId"`
	IsLatest     bool      `xml:"IsLatest"`
	LastModified ISOTime   `xml:"LastModified"`
	Owner        *UserInfo `xml:"Owner,omitempty"`
}

func (d *DeleteMarker) GetVersionID() string  { return d.VersionID }
func (d *DeleteMarker) setVersionID(id string) { d.VersionID = id }

// ListBucketVersionsResult is the response to GET ?versions. Items holds
// the merged, ordered stream of Version and DeleteMarker entries so the
// encoder can write <Version> and <DeleteMarker> elements interleaved in
// their natural (newest-first) order, the way real S3 does.
type ListBucketVersionsResult struct {
	XMLName             xml.Name       `xml:"ListVersionsResult"`
	Xmlns               string         `xml:"xmlns,attr"`
	Name                string         `xml:"Name"`
	Prefix               string         `xml:"Prefix"`
	Delimiter           string         `xml:"Delimiter,omitempty"`
	KeyMarker           string         `xml:"KeyMarker"`
	VersionIDMarker     string         `xml:"VersionIdMarker"`
	NextKeyMarker       string         `xml:"NextKeyMarker,omitempty"`
	NextVersionIDMarker string         `xml:"NextVersionIdMarker,omitempty"`
	MaxKeys             int64          `xml:"MaxKeys"`
	IsTruncated         bool           `xml:"IsTruncated"`
	CommonPrefixes      []CommonPrefix `xml:"CommonPrefixes,omitempty"`
	Items               []VersionItem  `xml:"-"`
}

// MarshalXML writes the interleaved <Version>/<DeleteMarker> sequence: each
// Items entry is encoded under its own XMLName, so the order of Items is the
// order of the elements.
func (r ListBucketVersionsResult) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "ListVersionsResult"}

	fields := struct {
		Xmlns               string         `xml:"xmlns,attr"`
		Name                string         `xml:"Name"`
		Prefix              string         `xml:"Prefix"`
		Delimiter           string         `xml:"Delimiter,omitempty"`
		KeyMarker           string         `xml:"KeyMarker"`
		VersionIDMarker     string         `xml:"VersionIdMarker"`
		NextKeyMarker       string         `xml:"NextKeyMarker,omitempty"`
		NextVersionIDMarker string         `xml:"NextVersionIdMarker,omitempty"`
		MaxKeys             int64          `xml:"MaxKeys"`
		IsTruncated         bool           `xml:"IsTruncated"`
		CommonPrefixes      []CommonPrefix `xml:"CommonPrefixes,omitempty"`
		Items               []VersionItem  `xml:"Version"`
	}{
		r.Xmlns, r.Name, r.Prefix, r.Delimiter, r.KeyMarker, r.VersionIDMarker,
		r.NextKeyMarker, r.NextVersionIDMarker, r.MaxKeys, r.IsTruncated, r.CommonPrefixes,
		r.Items,
	}
	return e.EncodeElement(fields, start)
}

// CopyObjectResult is the response body for a PUT with x-amz-copy-source.
type CopyObjectResult struct {
	XMLName      xml.Name `xml:"CopyObjectResult"`
	Xmlns         string   `xml:"xmlns,attr"`
	LastModified ISOTime  `xml:"LastModified"`
	ETag         string   `xml:"ETag"`
}

// DeleteObjectID is one <Object><Key>...</Key></Object> entry in a
// multi-object delete request.
type DeleteObjectID struct {
	Key       string `xml:"Key"`
	VersionID string `xml:"VersionId,omitempty"`
}

// DeleteRequest is the POST ?delete request body.
type DeleteRequest struct {
	XMLName xml.Name         `xml:"Delete"`
	Quiet   bool             `xml:"Quiet"`
	Objects []DeleteObjectID `xml:"Object"`
}

// DeletedObject is one successfully deleted entry in a MultiDeleteResult.
type DeletedObject struct {
	Key       string `xml:"Key"`
	VersionID string `xml:"VersionId,omitempty"`
}

// DeleteError is one failed entry in a MultiDeleteResult.
type DeleteError struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// MultiDeleteResult is the response body for POST ?delete.
type MultiDeleteResult struct {
	XMLName xml.Name        `xml:"DeleteResult"`
	Xmlns   string          `xml:"xmlns,attr"`
	Deleted []DeletedObject `xml:"Deleted,omitempty"`
	Error   []DeleteError   `xml:"Error,omitempty"`
}

func newMultiDeleteResult() *MultiDeleteResult {
	return &MultiDeleteResult{Xmlns: xmlns}
}
