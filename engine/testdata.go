package engine

// TestData is the built-in SQL corpus the REPL loads when the user
// types `testdata`: a small music library with enough shape to
// exercise joins, grouping and subqueries interactively.
const TestData = `
CREATE TABLE artist (
    id          u64 PRIMARY KEY,
    name        varchar,
    country     varchar NULL
);

CREATE TABLE album (
    id          u64 PRIMARY KEY,
    artist_id   u64 REFERENCES artist (id),
    title       varchar,
    year        u32,
    rating      f64 NULL
);

CREATE TABLE track (
    album_id    u64 REFERENCES album (id),
    title       varchar,
    seconds     u32,
    plays       u64
);

INSERT INTO artist VALUES
    (1, 'The Null Pointers', 'CA'),
    (2, 'Segfault Orchestra', 'DE'),
    (3, 'Leftmost Join', NULL);

INSERT INTO album VALUES
    (1, 1, 'Dangling References', 2011, 4.5),
    (2, 1, 'Use After Free', 2014, 3.0),
    (3, 2, 'Kernel Panic', 2013, NULL),
    (4, 3, 'Outer Space', 2015, 5.0);

INSERT INTO track VALUES
    (1, 'Uninitialized', 214, 1200),
    (1, 'Page Fault Blues', 187, 400),
    (2, 'Double Free', 305, 2500),
    (3, 'Oops', 142, 90),
    (3, 'Stack Smash', 230, 310),
    (4, 'Apogee', 411, 7800);
`

// LoadTestData executes the built-in corpus against e.
func (e *Engine) LoadTestData() error {
	_, err := e.ExecuteSQL(TestData)
	return err
}
