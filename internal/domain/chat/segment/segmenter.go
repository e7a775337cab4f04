// Package segment 将流式到达的回复文本切分为适合语音合成的分段。
package segment

// DefaultChunkSize 默认分段长度上限（按rune计）
const DefaultChunkSize = 50

// 句子终止符
var sentenceEndings = map[rune]bool{
	'。': true, '！': true, '？': true,
	'.': true, '!': true, '?': true,
}

// 换气标记：长句按这些标点细分
var breathMarkers = map[rune]bool{
	'、': true, '，': true, ',': true, '…': true,
}

// Segmenter 按句子和换气标记增量切分文本。
// 跨多次 Feed 维护两块状态：未结束的句子尾巴和贪心打包缓冲。
// 除整体为空白的分段被丢弃外，所有 Feed 产出加上 Flush 拼接后与输入完全一致。
type Segmenter struct {
	chunkSize int
	tail      []rune // 尚未遇到终止符的句子残留
	buf       []rune // 打包中的分段缓冲
}

func NewSegmenter(chunkSize int) *Segmenter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Segmenter{chunkSize: chunkSize}
}

// Feed 投入新到达的文本，返回已完成的分段（可能为空）。
func (s *Segmenter) Feed(text string) []string {
	if text == "" {
		return nil
	}

	runes := make([]rune, 0, len(s.tail)+len(text))
	runes = append(runes, s.tail...)
	runes = append(runes, []rune(text)...)

	sentences, rest := splitSentences(runes)
	s.tail = rest

	var out []string
	for _, sentence := range sentences {
		out = append(out, s.pack(sentence)...)
	}
	return out
}

// Flush 产出残留内容。流结束时调用。
func (s *Segmenter) Flush() []string {
	var out []string
	if len(s.tail) > 0 {
		out = append(out, s.pack(s.tail)...)
		s.tail = nil
	}
	if len(s.buf) > 0 {
		if seg := string(s.buf); !isBlank(s.buf) {
			out = append(out, seg)
		}
		s.buf = nil
	}
	return out
}

// pack 将一个句子贪心打包进缓冲，超长句先按换气标记细分
func (s *Segmenter) pack(sentence []rune) []string {
	var pieces [][]rune
	if len(sentence) > s.chunkSize {
		pieces = splitBreath(sentence, s.chunkSize)
	} else {
		pieces = [][]rune{sentence}
	}

	var out []string
	for _, piece := range pieces {
		if len(s.buf) > 0 && len(s.buf)+len(piece) > s.chunkSize {
			if !isBlank(s.buf) {
				out = append(out, string(s.buf))
			}
			s.buf = append(s.buf[:0:0], piece...)
		} else {
			s.buf = append(s.buf, piece...)
		}
	}
	return out
}

// splitSentences 按终止符切句，返回完整句子和未结束的残留
func splitSentences(runes []rune) ([][]rune, []rune) {
	var sentences [][]rune
	start := 0
	for i, r := range runes {
		if sentenceEndings[r] {
			sentences = append(sentences, runes[start:i+1])
			start = i + 1
		}
	}
	var rest []rune
	if start < len(runes) {
		rest = append(rest, runes[start:]...)
	}
	return sentences, rest
}

// splitBreath 按换气标记细分超长句。没有换气标记时在长度上限处硬切。
func splitBreath(sentence []rune, chunkSize int) [][]rune {
	var chunks [][]rune
	start := 0
	for i, r := range sentence {
		if breathMarkers[r] || i-start+1 >= chunkSize {
			chunks = append(chunks, sentence[start:i+1])
			start = i + 1
		}
	}
	if start < len(sentence) {
		chunks = append(chunks, sentence[start:])
	}
	return chunks
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		switch r {
		case ' ', '\t', '\n', '\r', '　':
		default:
			return false
		}
	}
	return true
}
