package analyzer

import (
	"iter"

	"query-doctor/internal/model"
	"query-doctor/internal/schema"
)

const testDDL = `
CREATE TABLE users (
    id INT PRIMARY KEY,
    name VARCHAR(255) NOT NULL
);

CREATE TABLE orders (
    id INT PRIMARY KEY,
    user_id INT NOT NULL,
    status VARCHAR(32),
    FOREIGN KEY (user_id) REFERENCES users (id)
);

CREATE TABLE comments (
    id INT PRIMARY KEY,
    user_id INT,
    body TEXT,
    FOREIGN KEY (user_id) REFERENCES users (id)
);

CREATE TABLE order_items (
    id INT PRIMARY KEY,
    order_id INT NOT NULL,
    sku VARCHAR(64),
    FOREIGN KEY (order_id) REFERENCES orders (id)
);

CREATE TABLE roles (
    id INT PRIMARY KEY,
    name VARCHAR(64)
);

CREATE TABLE user_roles (
    user_id INT NOT NULL,
    role_id INT NOT NULL,
    PRIMARY KEY (user_id, role_id),
    FOREIGN KEY (user_id) REFERENCES users (id),
    FOREIGN KEY (role_id) REFERENCES roles (id)
);
`

func testIndex() *schema.Index {
	return schema.NewIndex(testDDL)
}

func record(sql string, ms float64) model.QueryRecord {
	return model.QueryRecord{SQL: sql, ExecutionTimeMs: ms}
}

func collect(seq iter.Seq[model.Issue]) []model.Issue {
	var issues []model.Issue
	for issue := range seq {
		issues = append(issues, issue)
	}
	return issues
}
