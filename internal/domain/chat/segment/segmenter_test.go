package segment

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSegmenter_RoundTrip(t *testing.T) {
	input := "今日はとてもいい天気だね！散歩に行きたいな。でも宿題があるから、先に終わらせないといけないんだ…大変だけど頑張るよ！終わったら一緒に出かけよう？"

	// 按不规则步长模拟流式到达
	s := NewSegmenter(20)
	var segments []string
	runes := []rune(input)
	for i := 0; i < len(runes); {
		step := 3 + i%5
		end := i + step
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, s.Feed(string(runes[i:end]))...)
		i = end
	}
	segments = append(segments, s.Flush()...)

	joined := strings.Join(segments, "")
	if joined != input {
		t.Errorf("round trip mismatch:\n want %q\n got  %q", input, joined)
	}
}

func TestSegmenter_SegmentBound(t *testing.T) {
	const chunkSize = 20
	input := "これはかなり長い文章でして、読点がいくつも入っていて、句点が来るまでにずいぶん時間がかかるのです、本当に長いのです。短い文。"

	s := NewSegmenter(chunkSize)
	segments := s.Feed(input)
	segments = append(segments, s.Flush()...)

	if len(segments) == 0 {
		t.Fatal("expected segments, got none")
	}
	for _, seg := range segments {
		if n := utf8.RuneCountInString(seg); n > chunkSize {
			t.Errorf("segment %q has %d runes, exceeds %d", seg, n, chunkSize)
		}
	}
}

func TestSegmenter_UnsplittableRun(t *testing.T) {
	// 没有任何换气标记的长句在长度上限处硬切
	const chunkSize = 10
	input := strings.Repeat("あ", 25) + "。"

	s := NewSegmenter(chunkSize)
	segments := s.Feed(input)
	segments = append(segments, s.Flush()...)

	joined := strings.Join(segments, "")
	if joined != input {
		t.Errorf("round trip mismatch for unsplittable run: got %q", joined)
	}
	for _, seg := range segments {
		if n := utf8.RuneCountInString(seg); n > chunkSize {
			t.Errorf("segment %q has %d runes, exceeds %d", seg, n, chunkSize)
		}
	}
}

func TestSegmenter_EmptyInput(t *testing.T) {
	s := NewSegmenter(50)
	if got := s.Feed(""); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := s.Flush(); got != nil {
		t.Errorf("expected nil flush on empty segmenter, got %v", got)
	}
}

func TestSegmenter_ShortGreeting(t *testing.T) {
	s := NewSegmenter(50)
	segments := s.Feed("こんにちは！今日は元気？")
	segments = append(segments, s.Flush()...)

	if len(segments) != 1 {
		t.Fatalf("expected exactly 1 segment, got %d: %v", len(segments), segments)
	}
	if segments[0] != "こんにちは！今日は元気？" {
		t.Errorf("unexpected segment text: %q", segments[0])
	}
}

func TestSegmenter_IncompleteTailHeldUntilFlush(t *testing.T) {
	s := NewSegmenter(50)
	segments := s.Feed("まだ終わっていない文")
	if len(segments) != 0 {
		t.Fatalf("incomplete sentence should stay buffered, got %v", segments)
	}
	segments = s.Flush()
	if len(segments) != 1 || segments[0] != "まだ終わっていない文" {
		t.Errorf("flush should release buffered tail, got %v", segments)
	}
}

func TestSegmenter_PacksShortSentences(t *testing.T) {
	s := NewSegmenter(50)
	segments := s.Feed("はい。そう。いいよ。")
	segments = append(segments, s.Flush()...)

	if len(segments) != 1 {
		t.Fatalf("short sentences should pack into one segment, got %d: %v", len(segments), segments)
	}
	if segments[0] != "はい。そう。いいよ。" {
		t.Errorf("unexpected packed segment: %q", segments[0])
	}
}
