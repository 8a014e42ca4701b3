package input

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"strings"

	"github.com/emersion/go-message"
	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/unicode"
)

// Outlook .msg files are OLE compound documents. Message properties live
// in streams named __substg1.0_PPPPTTTT, where PPPP is the MAPI property
// and TTTT the type (001F UTF-16LE string, 001E 8-bit string, 0102
// binary). Attachments are nested under __attach_version1.0_#NNNNNNNN
// storages. We lift the interesting properties out and rebuild an RFC
// 5322 message the analysis API can ingest.
const (
	propSubject          = "0037"
	propSenderName       = "0C1A"
	propSenderSMTP       = "5D01"
	propDisplayTo        = "0E04"
	propDisplayCc        = "0E03"
	propTransportHeaders = "007D"
	propBodyText         = "1000"
	propBodyHTML         = "1013"

	propAttachData     = "3701"
	propAttachLongName = "3707"
	propAttachMIMETag  = "370E"
)

// msgAttachment is one attachment lifted from an attach storage.
type msgAttachment struct {
	filename string
	mimeType string
	data     []byte
}

// LoadMSG converts an Outlook .msg file into an RFC 5322 message and
// returns its base64 encoding.
func LoadMSG(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to load MSG: %w", err)
	}
	defer f.Close()

	eml, err := buildEMLFromMSG(f)
	if err != nil {
		return "", fmt.Errorf("failed to load MSG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(eml), nil
}

// buildEMLFromMSG reads the CFB container and reassembles a message.
func buildEMLFromMSG(ra io.ReaderAt) ([]byte, error) {
	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, err
	}

	props := make(map[string]string) // top-level string properties
	attachProps := make(map[string]map[string]string)
	attachData := make(map[string][]byte)

	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		prop, typ, ok := parsePropertyStream(entry.Name)
		if !ok {
			continue
		}

		attachStorage := ""
		for _, p := range entry.Path {
			if strings.HasPrefix(p, "__attach_version1.0_") {
				attachStorage = p
				break
			}
		}
		// Skip recipient and embedded message storages.
		if attachStorage == "" && len(entry.Path) > 0 {
			continue
		}

		raw, readErr := io.ReadAll(entry)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read property stream %s: %w", entry.Name, readErr)
		}

		if attachStorage != "" {
			if prop == propAttachData && typ == "0102" {
				attachData[attachStorage] = raw
				continue
			}
			value, ok := decodePropertyString(raw, typ)
			if !ok {
				continue
			}
			if attachProps[attachStorage] == nil {
				attachProps[attachStorage] = make(map[string]string)
			}
			attachProps[attachStorage][prop] = value
			continue
		}

		if value, ok := decodePropertyString(raw, typ); ok {
			props[prop] = value
		} else if prop == propBodyHTML && typ == "0102" {
			props[prop] = string(raw)
		}
	}

	var attachments []msgAttachment
	for storage, data := range attachData {
		att := msgAttachment{data: data}
		if p := attachProps[storage]; p != nil {
			att.filename = p[propAttachLongName]
			att.mimeType = p[propAttachMIMETag]
		}
		if att.filename == "" {
			att.filename = "attachment"
		}
		if att.mimeType == "" {
			att.mimeType = "application/octet-stream"
		}
		attachments = append(attachments, att)
	}

	return writeEML(props, attachments)
}

// parsePropertyStream splits a __substg1.0_PPPPTTTT stream name.
func parsePropertyStream(name string) (prop, typ string, ok bool) {
	const prefix = "__substg1.0_"
	if !strings.HasPrefix(name, prefix) || len(name) != len(prefix)+8 {
		return "", "", false
	}
	return name[len(prefix) : len(prefix)+4], name[len(prefix)+4:], true
}

// decodePropertyString decodes a string property stream value.
func decodePropertyString(raw []byte, typ string) (string, bool) {
	switch typ {
	case "001F":
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		decoded, err := dec.Bytes(raw)
		if err != nil {
			return "", false
		}
		return strings.TrimRight(string(decoded), "\x00"), true
	case "001E":
		return strings.TrimRight(string(raw), "\x00"), true
	default:
		return "", false
	}
}

// writeEML reassembles an RFC 5322 message from extracted properties.
func writeEML(props map[string]string, attachments []msgAttachment) ([]byte, error) {
	var header message.Header
	applyTransportHeaders(&header, props[propTransportHeaders])

	if header.Get("From") == "" {
		from := props[propSenderSMTP]
		if name := props[propSenderName]; name != "" && from != "" {
			from = fmt.Sprintf("%s <%s>", name, from)
		} else if from == "" {
			from = props[propSenderName]
		}
		if from != "" {
			header.Set("From", from)
		}
	}
	if header.Get("To") == "" && props[propDisplayTo] != "" {
		header.Set("To", props[propDisplayTo])
	}
	if header.Get("Cc") == "" && props[propDisplayCc] != "" {
		header.Set("Cc", props[propDisplayCc])
	}
	if header.Get("Subject") == "" && props[propSubject] != "" {
		header.Set("Subject", props[propSubject])
	}
	header.Set("MIME-Version", "1.0")

	text := props[propBodyText]
	html := props[propBodyHTML]

	var buf bytes.Buffer
	switch {
	case len(attachments) > 0:
		header.SetContentType("multipart/mixed", nil)
		w, err := message.CreateWriter(&buf, header)
		if err != nil {
			return nil, err
		}
		if err := writeBodyPart(w, text, html); err != nil {
			return nil, err
		}
		for _, att := range attachments {
			if err := writeAttachmentPart(w, att); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	case html != "":
		header.SetContentType("multipart/alternative", nil)
		w, err := message.CreateWriter(&buf, header)
		if err != nil {
			return nil, err
		}
		if err := writeTextPart(w, "text/plain", text); err != nil {
			return nil, err
		}
		if err := writeTextPart(w, "text/html", html); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	default:
		header.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := message.CreateWriter(&buf, header)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// applyTransportHeaders copies the original SMTP headers onto the new
// message, skipping MIME structure headers that no longer apply.
func applyTransportHeaders(header *message.Header, transport string) {
	if transport == "" {
		return
	}
	// Header blocks in the property stream use bare LF as often as CRLF.
	normalized := strings.ReplaceAll(transport, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\n", "\r\n")
	if !strings.HasSuffix(normalized, "\r\n\r\n") {
		normalized += "\r\n\r\n"
	}

	tr := textproto.NewReader(bufio.NewReader(strings.NewReader(normalized)))
	mimeHeader, err := tr.ReadMIMEHeader()
	if err != nil && len(mimeHeader) == 0 {
		return
	}
	for key, values := range mimeHeader {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "content-") || lower == "mime-version" {
			continue
		}
		for _, v := range values {
			header.Add(key, v)
		}
	}
}

// writeBodyPart writes the message body inside a multipart/mixed
// message, as a nested multipart/alternative when HTML exists.
func writeBodyPart(w *message.Writer, text, html string) error {
	if html == "" {
		var ph message.Header
		ph.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		pw, err := w.CreatePart(ph)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(pw, text); err != nil {
			return err
		}
		return pw.Close()
	}

	var ah message.Header
	ah.SetContentType("multipart/alternative", nil)
	aw, err := w.CreatePart(ah)
	if err != nil {
		return err
	}
	if err := writeTextPart(aw, "text/plain", text); err != nil {
		return err
	}
	if err := writeTextPart(aw, "text/html", html); err != nil {
		return err
	}
	return aw.Close()
}

func writeTextPart(w *message.Writer, mediaType, body string) error {
	var ph message.Header
	ph.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	pw, err := w.CreatePart(ph)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return err
	}
	return pw.Close()
}

func writeAttachmentPart(w *message.Writer, att msgAttachment) error {
	var ph message.Header
	ph.SetContentType(att.mimeType, map[string]string{"name": att.filename})
	ph.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.filename))
	ph.Set("Content-Transfer-Encoding", "base64")
	pw, err := w.CreatePart(ph)
	if err != nil {
		return err
	}
	if _, err := pw.Write(att.data); err != nil {
		return err
	}
	return pw.Close()
}
