// Package plan defines the fixed 365-day Bible reading schedule.
//
// The schedule is computed deterministically from per-book chapter counts:
// the Old Testament and New Testament are read as two parallel tracks, each
// spread evenly across the year. A reading is a contiguous chapter range
// within a single book; a day carries one or more readings.
package plan

import "fmt"

// TotalDays is the length of the reading plan.
const TotalDays = 365

// Book describes one book of the Bible.
type Book struct {
	Number   int // 1-based position in canonical order
	NameEn   string
	NameRu   string
	ShortEn  string
	ShortRu  string
	Chapters int
}

// Reading is a contiguous chapter range within a single book.
type Reading struct {
	Book         int // Book.Number
	StartChapter int
	EndChapter   int
}

// Reference formats the reading for display, e.g. "Genesis 1-3".
// lang selects the book name table; anything other than "ru" renders English.
func (r Reading) Reference(lang string) string {
	b, ok := BookByNumber(r.Book)
	if !ok {
		return fmt.Sprintf("book %d %d-%d", r.Book, r.StartChapter, r.EndChapter)
	}
	name := b.NameEn
	if lang == "ru" {
		name = b.NameRu
	}
	if r.StartChapter == r.EndChapter {
		return fmt.Sprintf("%s %d", name, r.StartChapter)
	}
	return fmt.Sprintf("%s %d-%d", name, r.StartChapter, r.EndChapter)
}

var books = []Book{
	{1, "Genesis", "Бытие", "Gen", "Быт", 50},
	{2, "Exodus", "Исход", "Exo", "Исх", 40},
	{3, "Leviticus", "Левит", "Lev", "Лев", 27},
	{4, "Numbers", "Числа", "Num", "Чис", 36},
	{5, "Deuteronomy", "Второзаконие", "Deu", "Втор", 34},
	{6, "Joshua", "Иисус Навин", "Jos", "Нав", 24},
	{7, "Judges", "Судьи", "Jdg", "Суд", 21},
	{8, "Ruth", "Руфь", "Rut", "Руф", 4},
	{9, "1 Samuel", "1 Царств", "1Sa", "1Цар", 31},
	{10, "2 Samuel", "2 Царств", "2Sa", "2Цар", 24},
	{11, "1 Kings", "3 Царств", "1Ki", "3Цар", 22},
	{12, "2 Kings", "4 Царств", "2Ki", "4Цар", 25},
	{13, "1 Chronicles", "1 Паралипоменон", "1Ch", "1Пар", 29},
	{14, "2 Chronicles", "2 Паралипоменон", "2Ch", "2Пар", 36},
	{15, "Ezra", "Ездра", "Ezr", "Езд", 10},
	{16, "Nehemiah", "Неемия", "Neh", "Неем", 13},
	{17, "Esther", "Есфирь", "Est", "Есф", 10},
	{18, "Job", "Иов", "Job", "Иов", 42},
	{19, "Psalms", "Псалтирь", "Psa", "Пс", 150},
	{20, "Proverbs", "Притчи", "Pro", "Прит", 31},
	{21, "Ecclesiastes", "Екклесиаст", "Ecc", "Еккл", 12},
	{22, "Song of Songs", "Песня Песней", "Sng", "Песн", 8},
	{23, "Isaiah", "Исаия", "Isa", "Ис", 66},
	{24, "Jeremiah", "Иеремия", "Jer", "Иер", 52},
	{25, "Lamentations", "Плач Иеремии", "Lam", "Плач", 5},
	{26, "Ezekiel", "Иезекииль", "Ezk", "Иез", 48},
	{27, "Daniel", "Даниил", "Dan", "Дан", 12},
	{28, "Hosea", "Осия", "Hos", "Ос", 14},
	{29, "Joel", "Иоиль", "Jol", "Иоил", 3},
	{30, "Amos", "Амос", "Amo", "Ам", 9},
	{31, "Obadiah", "Авдий", "Oba", "Авд", 1},
	{32, "Jonah", "Иона", "Jon", "Ион", 4},
	{33, "Micah", "Михей", "Mic", "Мих", 7},
	{34, "Nahum", "Наум", "Nam", "Наум", 3},
	{35, "Habakkuk", "Аввакум", "Hab", "Авв", 3},
	{36, "Zephaniah", "Софония", "Zep", "Соф", 3},
	{37, "Haggai", "Аггей", "Hag", "Агг", 2},
	{38, "Zechariah", "Захария", "Zec", "Зах", 14},
	{39, "Malachi", "Малахия", "Mal", "Мал", 4},
	{40, "Matthew", "От Матфея", "Mat", "Мф", 28},
	{41, "Mark", "От Марка", "Mrk", "Мк", 16},
	{42, "Luke", "От Луки", "Luk", "Лк", 24},
	{43, "John", "От Иоанна", "Jhn", "Ин", 21},
	{44, "Acts", "Деяния", "Act", "Деян", 28},
	{45, "Romans", "Римлянам", "Rom", "Рим", 16},
	{46, "1 Corinthians", "1 Коринфянам", "1Co", "1Кор", 16},
	{47, "2 Corinthians", "2 Коринфянам", "2Co", "2Кор", 13},
	{48, "Galatians", "Галатам", "Gal", "Гал", 6},
	{49, "Ephesians", "Ефесянам", "Eph", "Еф", 6},
	{50, "Philippians", "Филиппийцам", "Php", "Флп", 4},
	{51, "Colossians", "Колоссянам", "Col", "Кол", 4},
	{52, "1 Thessalonians", "1 Фессалоникийцам", "1Th", "1Фес", 5},
	{53, "2 Thessalonians", "2 Фессалоникийцам", "2Th", "2Фес", 3},
	{54, "1 Timothy", "1 Тимофею", "1Ti", "1Тим", 6},
	{55, "2 Timothy", "2 Тимофею", "2Ti", "2Тим", 4},
	{56, "Titus", "Титу", "Tit", "Тит", 3},
	{57, "Philemon", "Филимону", "Phm", "Флм", 1},
	{58, "Hebrews", "Евреям", "Heb", "Евр", 13},
	{59, "James", "Иакова", "Jas", "Иак", 5},
	{60, "1 Peter", "1 Петра", "1Pe", "1Пет", 5},
	{61, "2 Peter", "2 Петра", "2Pe", "2Пет", 3},
	{62, "1 John", "1 Иоанна", "1Jn", "1Ин", 5},
	{63, "2 John", "2 Иоанна", "2Jn", "2Ин", 1},
	{64, "3 John", "3 Иоанна", "3Jn", "3Ин", 1},
	{65, "Jude", "Иуды", "Jud", "Иуд", 1},
	{66, "Revelation", "Откровение", "Rev", "Откр", 22},
}

// days holds the full schedule, indexed by plan day minus one.
var days [][]Reading

func init() {
	oldTestament := books[:39]
	newTestament := books[39:]

	days = make([][]Reading, TotalDays)
	appendTrack(days, oldTestament)
	appendTrack(days, newTestament)
}

// appendTrack distributes a track's chapters evenly across the year and
// appends the resulting readings to each day. Day d receives the global
// chapter indexes [floor((d-1)*total/365), floor(d*total/365)), split at
// book boundaries into contiguous readings.
func appendTrack(days [][]Reading, track []Book) {
	total := 0
	for _, b := range track {
		total += b.Chapters
	}

	for d := 1; d <= TotalDays; d++ {
		lo := (d - 1) * total / TotalDays
		hi := d * total / TotalDays
		if lo == hi {
			continue // track has fewer chapters than days; some days skip it
		}
		days[d-1] = append(days[d-1], chaptersToReadings(track, lo, hi)...)
	}
}

// chaptersToReadings converts a global chapter index range [lo, hi) within a
// track into per-book readings with 1-based chapter numbers.
func chaptersToReadings(track []Book, lo, hi int) []Reading {
	var out []Reading
	base := 0
	for _, b := range track {
		end := base + b.Chapters
		if hi <= base {
			break
		}
		if lo < end {
			start := lo
			if start < base {
				start = base
			}
			stop := hi
			if stop > end {
				stop = end
			}
			out = append(out, Reading{
				Book:         b.Number,
				StartChapter: start - base + 1,
				EndChapter:   stop - base,
			})
		}
		base = end
	}
	return out
}

// Books returns the full book table in canonical order.
func Books() []Book {
	return books
}

// BookByNumber looks up a book by its canonical number.
func BookByNumber(n int) (Book, bool) {
	if n < 1 || n > len(books) {
		return Book{}, false
	}
	return books[n-1], true
}

// Day returns the readings for a 1-based plan day.
func Day(n int) ([]Reading, bool) {
	if n < 1 || n > TotalDays {
		return nil, false
	}
	return days[n-1], true
}

// ReadingCount returns the number of readings on a plan day, or 0 for days
// outside the plan.
func ReadingCount(n int) int {
	readings, ok := Day(n)
	if !ok {
		return 0
	}
	return len(readings)
}
