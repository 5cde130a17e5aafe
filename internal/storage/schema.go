package storage

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    email_verified INTEGER NOT NULL DEFAULT 0,
    verification_token TEXT,
    created_at INTEGER NOT NULL
);

-- Uploaded files. content_hash lets the importer skip files it already sent.
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    file_path TEXT NOT NULL,
    file_type TEXT NOT NULL,
    file_size INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(user_id, content_hash);

CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    name TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS concepts (
    id TEXT PRIMARY KEY,
    topic_id TEXT NOT NULL,
    name TEXT NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    source_text TEXT,
    complexity_level TEXT,
    position INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(topic_id) REFERENCES topics(id) ON DELETE CASCADE
);

-- One row per user and concept; status 'mastered' always has next_review_at.
CREATE TABLE IF NOT EXISTS concept_mastery (
    user_id TEXT NOT NULL,
    concept_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'not_started',
    correct_count INTEGER NOT NULL DEFAULT 0,
    review_count INTEGER NOT NULL DEFAULT 0,
    next_review_at INTEGER,
    last_reviewed_at INTEGER,
    updated_at INTEGER NOT NULL,

    PRIMARY KEY(user_id, concept_id),
    FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY(concept_id) REFERENCES concepts(id) ON DELETE CASCADE,
    CHECK (status <> 'mastered' OR next_review_at IS NOT NULL)
);

CREATE TABLE IF NOT EXISTS quizzes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    document_id TEXT,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    generation_status TEXT NOT NULL DEFAULT 'pending',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY(document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    quiz_id TEXT NOT NULL,
    concept_id TEXT,
    question_text TEXT NOT NULL,
    hint TEXT,
    difficulty_level TEXT NOT NULL DEFAULT 'medium',
    order_index INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(quiz_id) REFERENCES quizzes(id) ON DELETE CASCADE,
    FOREIGN KEY(concept_id) REFERENCES concepts(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_concept ON questions(concept_id);

CREATE TABLE IF NOT EXISTS question_options (
    id TEXT PRIMARY KEY,
    question_id TEXT NOT NULL,
    option_text TEXT NOT NULL,
    option_index INTEGER NOT NULL,
    is_correct INTEGER NOT NULL DEFAULT 0,
    explanation TEXT NOT NULL DEFAULT '',

    UNIQUE(question_id, option_index),
    FOREIGN KEY(question_id) REFERENCES questions(id) ON DELETE CASCADE
);

-- Attempts are insert-only.
CREATE TABLE IF NOT EXISTS quiz_attempts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    quiz_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    total_questions INTEGER NOT NULL,
    answers TEXT NOT NULL,
    completed_at INTEGER NOT NULL,

    FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY(quiz_id) REFERENCES quizzes(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS question_attempts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    question_id TEXT NOT NULL,
    concept_id TEXT,
    session_id TEXT,
    selected_option INTEGER NOT NULL,
    is_correct INTEGER NOT NULL,
    time_spent_ms INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,

    FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY(question_id) REFERENCES questions(id) ON DELETE CASCADE
);
`
