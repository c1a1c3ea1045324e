package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"robo-chat-go/internal/model"
	"robo-chat-go/pkg/log"
)

// DefaultUploadSummaryChars 超过该字符数的上传文本会被摘要
const DefaultUploadSummaryChars = 5000

// DefaultMaxUploadBytes 是上传文件的默认大小上限
const DefaultMaxUploadBytes = 20 << 20

// TextExtractor 从二进制文档中抽取文本（Tika）。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Summarizer 将长文本压缩到 token 预算内。
type Summarizer interface {
	Summarize(text string, maxTokens int) model.Outcome
}

// FileOptions 配置上传文件处理。
type FileOptions struct {
	SummaryChars  int
	SummaryTokens int
	MaxBytes      int64
}

// FileService 把上传的文件转换成可回答的文本。
type FileService interface {
	Ingest(ctx context.Context, fileName, contentType string, r io.Reader) model.Outcome
	// MaxBytes 返回上传大小上限
	MaxBytes() int64
}

type fileService struct {
	extractor  TextExtractor
	summarizer Summarizer
	opts       FileOptions
}

// NewFileService 创建 FileService。extractor 为 nil 时只接受纯文本文件。
func NewFileService(extractor TextExtractor, summarizer Summarizer, opts FileOptions) FileService {
	if opts.SummaryChars <= 0 {
		opts.SummaryChars = DefaultUploadSummaryChars
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxUploadBytes
	}
	return &fileService{extractor: extractor, summarizer: summarizer, opts: opts}
}

// isPlainText 根据 Content-Type 或扩展名判断是否为文本文件
func isPlainText(fileName, contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	if t := mime.TypeByExtension(filepath.Ext(fileName)); strings.HasPrefix(t, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md", ".go", ".py", ".json", ".yaml", ".yml", ".csv", ".log":
		return true
	}
	return false
}

// TooLargeFailure 是超过上传上限时的失败结果
func TooLargeFailure(fileName string, limit int64) model.Outcome {
	return model.Fail(model.KindParse, fmt.Sprintf("File %s is too large: the limit is %d bytes.", fileName, limit), nil)
}

func (s *fileService) MaxBytes() int64 { return s.opts.MaxBytes }

func (s *fileService) Ingest(ctx context.Context, fileName, contentType string, r io.Reader) model.Outcome {
	// 多读一个字节用于判断是否超限，超限的文件整体拒绝，不做截断
	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxBytes+1))
	if err != nil {
		return model.Fail(model.KindParse, fmt.Sprintf("Error processing file: %v", err), err)
	}
	if int64(len(data)) > s.opts.MaxBytes {
		log.Warnw("upload rejected, too large", "file", fileName, "limit", s.opts.MaxBytes)
		return TooLargeFailure(fileName, s.opts.MaxBytes)
	}

	text, failure := s.extract(ctx, fileName, contentType, data)
	if failure != nil {
		return model.Outcome{Err: failure}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return model.Fail(model.KindNoContent, fmt.Sprintf("No text could be extracted from %s.", fileName), nil)
	}

	if utf8.RuneCountInString(text) > s.opts.SummaryChars {
		log.Infow("large upload detected, summarizing", "file", fileName, "chars", utf8.RuneCountInString(text))
		return s.summarizer.Summarize(text, s.opts.SummaryTokens)
	}
	return model.Succeed(text)
}

func (s *fileService) extract(ctx context.Context, fileName, contentType string, data []byte) (string, *model.Failure) {
	if isPlainText(fileName, contentType) {
		if !utf8.Valid(data) {
			return "", &model.Failure{Kind: model.KindParse, Message: "Error processing file: text is not valid UTF-8"}
		}
		return string(data), nil
	}

	if s.extractor == nil {
		return "", &model.Failure{Kind: model.KindParse, Message: "Unsupported file type."}
	}
	text, err := s.extractor.ExtractText(ctx, bytes.NewReader(data), fileName)
	if err != nil {
		log.Warnw("document extraction failed", "file", fileName, "error", err)
		return "", &model.Failure{Kind: model.KindNetwork, Message: fmt.Sprintf("Error processing file: %v", err), Cause: err}
	}
	return text, nil
}
